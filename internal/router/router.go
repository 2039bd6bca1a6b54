package router

import (
	"github.com/anonto42/order-notify/backend/internal/handlers"
	"github.com/anonto42/order-notify/backend/internal/middleware"
	"github.com/anonto42/order-notify/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Routes lists what the server exposes besides /health. A nil field leaves its routes out.
type Routes struct {
	// Dispatcher receives pushed record creations; set in http trigger mode only.
	Dispatcher    handlers.EventDispatcher
	TriggerSecret string
	// DeliveryLog backs the admin API; set when Postgres is configured.
	DeliveryLog repositories.DeliveryLogRepository
	AdminAuth   middleware.TokenVerifier
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.RequestLoggerWithConfig(eMiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v eMiddleware.RequestLoggerValues) error {
			entry := logrus.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	logrus.Debug("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, routes Routes) {
	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	api := e.Group("/api/v1")

	if routes.Dispatcher != nil {
		triggers := api.Group("/triggers", middleware.JWTAuthMiddleware(routes.TriggerSecret))
		handlers.NewTriggerHandler(routes.Dispatcher).RegisterTriggerRoutes(triggers)
		logrus.Info("Trigger routes configured.")
	}

	if routes.DeliveryLog != nil && routes.AdminAuth != nil {
		admin := api.Group("/admin")
		admin.Use(middleware.FirebaseAuthMiddleware(routes.AdminAuth))
		handlers.NewDeliveryHandler(routes.DeliveryLog).RegisterDeliveryRoutes(admin)
		logrus.Info("Admin routes configured.")
	}

	logrus.Info("All routes configured.")
}

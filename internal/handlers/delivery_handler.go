package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/anonto42/order-notify/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// DeliveryHandler serves the delivery log to operators
type DeliveryHandler struct {
	deliveryLogRepository repositories.DeliveryLogRepository
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(repo repositories.DeliveryLogRepository) *DeliveryHandler {
	return &DeliveryHandler{deliveryLogRepository: repo}
}

// RegisterDeliveryRoutes registers delivery log routes
func (h *DeliveryHandler) RegisterDeliveryRoutes(g *echo.Group) {
	g.GET("/deliveries", h.GetDeliveries)
	g.GET("/deliveries/records/:recordId", h.GetRecordDeliveries)
}

// GetDeliveries returns the paginated delivery log, newest first
func (h *DeliveryHandler) GetDeliveries(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	entries, total, err := h.deliveryLogRepository.GetDeliveryLogs(c.Request().Context(), page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"deliveries": entries,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// GetRecordDeliveries returns every delivery attempt logged for one record
func (h *DeliveryHandler) GetRecordDeliveries(c echo.Context) error {
	recordID := c.Param("recordId")
	if recordID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Record ID is required")
	}

	entries, err := h.deliveryLogRepository.GetByRecordID(c.Request().Context(), recordID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"deliveries": entries}})
}

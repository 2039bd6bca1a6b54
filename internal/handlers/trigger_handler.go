package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/order-notify/backend/internal/dispatcher"
	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// EventDispatcher handles one "record created" event
type EventDispatcher interface {
	Handle(ctx context.Context, ev dispatcher.Event) (models.Outcome, error)
}

// TriggerHandler receives record creation events pushed by the event platform
type TriggerHandler struct {
	dispatcher EventDispatcher
}

// NewTriggerHandler creates a new TriggerHandler
func NewTriggerHandler(d EventDispatcher) *TriggerHandler {
	return &TriggerHandler{dispatcher: d}
}

// RegisterTriggerRoutes registers trigger routes
func (h *TriggerHandler) RegisterTriggerRoutes(g *echo.Group) {
	g.POST("/notifications", h.NotificationCreated)
}

// NotificationCreated dispatches the push notification for a newly created record.
// Delivery failures are recorded on the record and still answered with 200; only a
// failed status write is reported as 500 so the platform can redeliver the event.
func (h *TriggerHandler) NotificationCreated(c echo.Context) error {
	var req models.TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	source := req.Source
	if source == "" {
		source = "http"
	}

	// The status write must not be abandoned when the caller hangs up.
	ctx := context.WithoutCancel(c.Request().Context())
	outcome, err := h.dispatcher.Handle(ctx, dispatcher.Event{
		RecordID: req.ID,
		Source:   source,
		Fields:   req.Data,
	})
	if err != nil {
		var statusErr *dispatcher.StatusWriteError
		if errors.As(err, &statusErr) {
			logrus.WithError(err).WithField("record_id", req.ID).Error("status write failed, asking for redelivery")
			return echo.NewHTTPError(http.StatusInternalServerError, "Unable to record delivery status")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    models.TriggerResponse{RecordID: req.ID, Outcome: outcome},
	})
}

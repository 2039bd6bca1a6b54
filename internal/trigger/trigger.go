// Package trigger turns document creations observed in Firestore or MongoDB into
// dispatcher events. Each watcher handles events one at a time, in the order the
// database reports them.
package trigger

import (
	"context"

	"github.com/anonto42/order-notify/backend/internal/dispatcher"
	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Handler processes one record creation.
type Handler interface {
	Handle(ctx context.Context, ev dispatcher.Event) (models.Outcome, error)
}

// Watcher runs until ctx is cancelled or the underlying stream fails.
type Watcher interface {
	Run(ctx context.Context) error
}

// handle passes ev to h. Errors have nowhere to go in watch mode, so they are logged
// and the watcher moves on to the next record. Stopping the watcher does not cancel a
// record that is already being handled, so its status still gets written.
func handle(ctx context.Context, h Handler, ev dispatcher.Event, log *logrus.Entry) {
	log = log.WithField("record_id", ev.RecordID)

	outcome, err := h.Handle(context.WithoutCancel(ctx), ev)
	if err != nil {
		log.WithError(err).Error("unable to handle notification record")
		return
	}
	log.WithField("outcome", outcome).Debug("notification record handled")
}

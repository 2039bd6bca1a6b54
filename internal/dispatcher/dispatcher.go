// Package dispatcher sends the push notification described by a newly created
// notification record and writes the delivery status back onto that record.
//
// The dispatcher knows nothing about how it was invoked. Trigger sources (the HTTP
// endpoint, the Firestore listener, the Mongo change stream) hand it an Event and
// act on the returned error.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageSender submits a push message to the provider and returns the provider's
// message ID once it has accepted the message for delivery.
type MessageSender interface {
	Send(ctx context.Context, msg *models.PushMessage) (string, error)
}

// RecordStore writes delivery statuses back onto notification records.
type RecordStore interface {
	UpdateStatus(ctx context.Context, recordID string, status models.DeliveryStatus) error
	GetRecordFields(ctx context.Context, recordID string) (map[string]interface{}, error)
}

// DeliveryLogWriter stores one audit row per dispatch attempt.
type DeliveryLogWriter interface {
	CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error
}

// Event is a single "record created" notification from a trigger source.
type Event struct {
	RecordID string
	Source   string
	Fields   map[string]interface{}
}

// Dispatcher handles record creation events.
type Dispatcher struct {
	sender         MessageSender
	store          RecordStore
	deliveryLog    DeliveryLogWriter
	duplicateGuard bool
	log            *logrus.Entry
	newID          func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeliveryLog enables the delivery audit log.
func WithDeliveryLog(w DeliveryLogWriter) Option {
	return func(d *Dispatcher) { d.deliveryLog = w }
}

// WithDuplicateGuard makes the dispatcher re-read the stored record before sending and
// skip it when a status has already been written.
func WithDuplicateGuard(enabled bool) Option {
	return func(d *Dispatcher) { d.duplicateGuard = enabled }
}

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Entry) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New creates a Dispatcher that sends through sender and records statuses in store.
func New(sender MessageSender, store RecordStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		store:  store,
		log:    logrus.WithField("component", "dispatcher"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleRecord runs Handle for a typed record.
func (d *Dispatcher) HandleRecord(ctx context.Context, source string, record *models.NotificationRecord) (models.Outcome, error) {
	return d.Handle(ctx, Event{RecordID: record.ID, Source: source, Fields: record.Fields()})
}

// Handle processes one newly created record. Records without a target role are left
// alone. Otherwise exactly one send is attempted and the record is marked sent=true
// with a server timestamp, or sent=false with the failure text. A failure to mark the
// record sent counts as a failure too and is written back the same way. Delivery
// failures are recorded, not returned; the only error returned is a *StatusWriteError
// when the failure status cannot be written either.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (models.Outcome, error) {
	log := d.log.WithFields(logrus.Fields{"record_id": ev.RecordID, "source": ev.Source})

	role, ok := models.TargetRole(ev.Fields)
	if !ok {
		log.Debug("record has no target role, nothing to send")
		return models.OutcomeSkipped, nil
	}
	log = log.WithField("topic", role)

	if d.isDuplicate(ctx, ev, log) {
		log.Info("record already has a delivery status, not sending again")
		return models.OutcomeDuplicate, nil
	}

	entry := &models.DeliveryLog{
		InvocationID: d.newID(),
		RecordID:     ev.RecordID,
		Source:       ev.Source,
		Topic:        fmt.Sprint(role),
		Type:         stringField(ev.Fields, models.FieldType),
		TableID:      stringField(ev.Fields, models.FieldTableID),
		OrderID:      stringField(ev.Fields, models.FieldOrderID),
	}

	status := models.DeliveryStatus{Sent: true}
	messageID, err := d.send(ctx, ev.Fields)
	if err != nil {
		log.WithError(err).Error("failed to send notification")
		status = models.DeliveryStatus{Sent: false, Error: err.Error()}
		entry.Outcome = models.OutcomeFailed
		entry.Error = err.Error()
	} else {
		log.WithField("message_id", messageID).Info("notification sent")
		entry.Outcome = models.OutcomeSent
		entry.MessageID = messageID
	}

	if err := d.store.UpdateStatus(ctx, ev.RecordID, status); err != nil {
		if !status.Sent {
			log.WithError(err).Error("unable to record delivery status")
			d.writeDeliveryLog(ctx, entry, log)
			return entry.Outcome, &StatusWriteError{RecordID: ev.RecordID, Status: status, Err: err}
		}

		// The message went out but the record does not say so. Record the write
		// failure instead so the record still ends up with a status.
		log.WithError(err).Error("unable to mark record sent, recording the failure")
		status = models.DeliveryStatus{Sent: false, Error: err.Error()}
		entry.Outcome = models.OutcomeFailed
		entry.Error = err.Error()
		if err := d.store.UpdateStatus(ctx, ev.RecordID, status); err != nil {
			log.WithError(err).Error("unable to record delivery status")
			d.writeDeliveryLog(ctx, entry, log)
			return entry.Outcome, &StatusWriteError{RecordID: ev.RecordID, Status: status, Err: err}
		}
	}

	d.writeDeliveryLog(ctx, entry, log)
	return entry.Outcome, nil
}

func (d *Dispatcher) send(ctx context.Context, fields map[string]interface{}) (string, error) {
	msg, err := models.BuildPushMessage(fields)
	if err != nil {
		return "", err
	}
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) isDuplicate(ctx context.Context, ev Event, log *logrus.Entry) bool {
	if models.AlreadyProcessed(ev.Fields) {
		return true
	}
	if !d.duplicateGuard {
		return false
	}

	current, err := d.store.GetRecordFields(ctx, ev.RecordID)
	if err != nil {
		log.WithError(err).Warn("unable to read the stored record, dispatching anyway")
		return false
	}
	return models.AlreadyProcessed(current)
}

func (d *Dispatcher) writeDeliveryLog(ctx context.Context, entry *models.DeliveryLog, log *logrus.Entry) {
	if d.deliveryLog == nil {
		return
	}
	if err := d.deliveryLog.CreateDeliveryLog(ctx, entry); err != nil {
		log.WithError(err).Warn("unable to write delivery log")
	}
}

func stringField(fields map[string]interface{}, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

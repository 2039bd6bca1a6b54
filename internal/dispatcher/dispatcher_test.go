package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records the messages it is asked to send.
type fakeSender struct {
	sent      []*models.PushMessage
	err       error
	messageID string
}

func (s *fakeSender) Send(_ context.Context, msg *models.PushMessage) (string, error) {
	s.sent = append(s.sent, msg)
	if s.err != nil {
		return "", s.err
	}
	return s.messageID, nil
}

// fakeStore keeps records in memory and applies status updates the way the real
// stores do.
type fakeStore struct {
	records   map[string]map[string]interface{}
	updates   int
	reads     int
	updateErr error
	sentErr   error
	getErr    error
	statuses  []models.DeliveryStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]map[string]interface{}{}}
}

func (s *fakeStore) put(id string, fields map[string]interface{}) {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.records[id] = copied
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status models.DeliveryStatus) error {
	s.updates++
	s.statuses = append(s.statuses, status)
	if s.updateErr != nil {
		return s.updateErr
	}
	if status.Sent && s.sentErr != nil {
		return s.sentErr
	}
	rec, ok := s.records[id]
	if !ok {
		rec = map[string]interface{}{}
		s.records[id] = rec
	}
	rec[models.FieldSent] = status.Sent
	if status.Sent {
		rec[models.FieldSentAt] = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	} else {
		rec[models.FieldError] = status.Error
	}
	return nil
}

func (s *fakeStore) GetRecordFields(_ context.Context, id string) (map[string]interface{}, error) {
	s.reads++
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return rec, nil
}

// fakeDeliveryLog collects delivery log entries.
type fakeDeliveryLog struct {
	entries []*models.DeliveryLog
	err     error
}

func (l *fakeDeliveryLog) CreateDeliveryLog(_ context.Context, entry *models.DeliveryLog) error {
	l.entries = append(l.entries, entry)
	return l.err
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

// orderReadyFields returns the record used throughout these tests.
func orderReadyFields() map[string]interface{} {
	return map[string]interface{}{
		"title":      "Order Ready",
		"body":       "Table 3",
		"type":       "order_update",
		"tableId":    "T3",
		"orderId":    "O100",
		"targetRole": "kitchen",
	}
}

func newTestDispatcher(sender *fakeSender, store *fakeStore, opts ...Option) *Dispatcher {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	d := New(sender, store, opts...)
	d.newID = func() string { return "invocation-1" }
	return d
}

func TestHandleSendsAndMarksRecordSent(t *testing.T) {
	sender := &fakeSender{messageID: "projects/p/messages/1"}
	store := newFakeStore()
	store.put("n1", orderReadyFields())
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Source: "test", Fields: orderReadyFields()})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSent, outcome)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "kitchen", msg.Topic)
	assert.Equal(t, models.PushNotification{Title: "Order Ready", Body: "Table 3"}, msg.Notification)
	assert.Equal(t, map[string]string{"type": "order_update", "tableId": "T3", "orderId": "O100"}, msg.Data)

	rec := store.records["n1"]
	assert.Equal(t, true, rec["sent"])
	assert.NotNil(t, rec["sentAt"])
	assert.NotContains(t, rec, "error")
	assert.Equal(t, "Order Ready", rec["title"], "other fields must be untouched")
	assert.Equal(t, 1, store.updates)
}

func TestHandleRecordsProviderFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("quota exceeded")}
	store := newFakeStore()
	store.put("n1", orderReadyFields())
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
	require.NoError(t, err, "delivery failures must not propagate")
	assert.Equal(t, models.OutcomeFailed, outcome)

	rec := store.records["n1"]
	assert.Equal(t, false, rec["sent"])
	assert.Equal(t, "quota exceeded", rec["error"])
	assert.NotContains(t, rec, "sentAt")
	assert.Len(t, sender.sent, 1, "no retry")
	assert.Equal(t, 1, store.updates)
}

func TestHandleSkipsRecordsWithoutTargetRole(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{"missing", map[string]interface{}{"title": "Order Ready", "body": "Table 3"}},
		{"empty", map[string]interface{}{"title": "Order Ready", "targetRole": ""}},
		{"null", map[string]interface{}{"title": "Order Ready", "targetRole": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			store := newFakeStore()
			store.put("n1", tt.fields)
			d := newTestDispatcher(sender, store, WithDuplicateGuard(true))

			outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: tt.fields})
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeSkipped, outcome)
			assert.Empty(t, sender.sent)
			assert.Zero(t, store.updates)
			assert.Zero(t, store.reads)
			assert.Equal(t, tt.fields, store.records["n1"])
		})
	}
}

func TestHandleRecordsFailureWhenMarkingSentFails(t *testing.T) {
	sender := &fakeSender{messageID: "m1"}
	store := newFakeStore()
	store.put("n1", orderReadyFields())
	store.sentErr = errors.New("deadline exceeded")
	deliveryLog := &fakeDeliveryLog{}
	d := newTestDispatcher(sender, store, WithDeliveryLog(deliveryLog))

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Len(t, sender.sent, 1)

	assert.Equal(t, []models.DeliveryStatus{
		{Sent: true},
		{Sent: false, Error: "deadline exceeded"},
	}, store.statuses)

	rec := store.records["n1"]
	assert.Equal(t, false, rec["sent"])
	assert.Equal(t, "deadline exceeded", rec["error"])
	assert.NotContains(t, rec, "sentAt")

	require.Len(t, deliveryLog.entries, 1)
	assert.Equal(t, models.OutcomeFailed, deliveryLog.entries[0].Outcome)
	assert.Equal(t, "m1", deliveryLog.entries[0].MessageID)
	assert.Equal(t, "deadline exceeded", deliveryLog.entries[0].Error)
}

func TestHandleReturnsStatusWriteError(t *testing.T) {
	writeErr := errors.New("deadline exceeded")
	sender := &fakeSender{messageID: "m1"}
	store := newFakeStore()
	store.updateErr = writeErr
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Equal(t, 2, store.updates, "marking sent, then recording the failure")

	var statusErr *StatusWriteError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "n1", statusErr.RecordID)
	assert.False(t, statusErr.Status.Sent)
	assert.Equal(t, "deadline exceeded", statusErr.Status.Error)
	assert.ErrorIs(t, err, writeErr)
}

func TestHandleReturnsStatusWriteErrorForDeliveryFailure(t *testing.T) {
	writeErr := errors.New("unavailable")
	sender := &fakeSender{err: errors.New("quota exceeded")}
	store := newFakeStore()
	store.updateErr = writeErr
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, 1, store.updates)
}

func TestHandleConstructionFailureIsRecorded(t *testing.T) {
	fields := orderReadyFields()
	fields["tableId"] = int64(3)

	sender := &fakeSender{}
	store := newFakeStore()
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Empty(t, sender.sent)
	assert.Equal(t, false, store.records["n1"]["sent"])
	assert.Contains(t, store.records["n1"]["error"], "tableId")
}

func TestHandleSkipsRecordThatAlreadyCarriesStatus(t *testing.T) {
	fields := orderReadyFields()
	fields["sent"] = false

	sender := &fakeSender{}
	store := newFakeStore()
	d := newTestDispatcher(sender, store)

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, outcome)
	assert.Empty(t, sender.sent)
	assert.Zero(t, store.updates)
}

func TestDuplicateGuard(t *testing.T) {
	t.Run("stored copy already sent", func(t *testing.T) {
		sender := &fakeSender{}
		store := newFakeStore()
		stored := orderReadyFields()
		stored["sent"] = true
		store.put("n1", stored)
		d := newTestDispatcher(sender, store, WithDuplicateGuard(true))

		outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeDuplicate, outcome)
		assert.Empty(t, sender.sent)
		assert.Zero(t, store.updates)
	})

	t.Run("redelivered event is sent once", func(t *testing.T) {
		sender := &fakeSender{messageID: "m1"}
		store := newFakeStore()
		store.put("n1", orderReadyFields())
		d := newTestDispatcher(sender, store, WithDuplicateGuard(true))

		ev := Event{RecordID: "n1", Fields: orderReadyFields()}
		first, err := d.Handle(context.Background(), ev)
		require.NoError(t, err)
		second, err := d.Handle(context.Background(), ev)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSent, first)
		assert.Equal(t, models.OutcomeDuplicate, second)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("read failure falls through to dispatch", func(t *testing.T) {
		sender := &fakeSender{messageID: "m1"}
		store := newFakeStore()
		store.getErr = errors.New("unavailable")
		d := newTestDispatcher(sender, store, WithDuplicateGuard(true))

		outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSent, outcome)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("disabled guard never reads", func(t *testing.T) {
		sender := &fakeSender{messageID: "m1"}
		store := newFakeStore()
		d := newTestDispatcher(sender, store)

		_, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
		require.NoError(t, err)
		assert.Zero(t, store.reads)
	})
}

func TestHandleWritesDeliveryLog(t *testing.T) {
	deliveryLog := &fakeDeliveryLog{}
	sender := &fakeSender{err: errors.New("invalid topic")}
	store := newFakeStore()
	d := newTestDispatcher(sender, store, WithDeliveryLog(deliveryLog))

	_, err := d.Handle(context.Background(), Event{RecordID: "n1", Source: "firestore", Fields: orderReadyFields()})
	require.NoError(t, err)

	require.Len(t, deliveryLog.entries, 1)
	entry := deliveryLog.entries[0]
	assert.Equal(t, "invocation-1", entry.InvocationID)
	assert.Equal(t, "n1", entry.RecordID)
	assert.Equal(t, "firestore", entry.Source)
	assert.Equal(t, "kitchen", entry.Topic)
	assert.Equal(t, "order_update", entry.Type)
	assert.Equal(t, "T3", entry.TableID)
	assert.Equal(t, "O100", entry.OrderID)
	assert.Equal(t, models.OutcomeFailed, entry.Outcome)
	assert.Equal(t, "invalid topic", entry.Error)
}

func TestDeliveryLogFailureDoesNotChangeOutcome(t *testing.T) {
	deliveryLog := &fakeDeliveryLog{err: errors.New("connection refused")}
	sender := &fakeSender{messageID: "m1"}
	store := newFakeStore()
	d := newTestDispatcher(sender, store, WithDeliveryLog(deliveryLog))

	outcome, err := d.Handle(context.Background(), Event{RecordID: "n1", Fields: orderReadyFields()})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSent, outcome)
	assert.Equal(t, true, store.records["n1"]["sent"])
}

func TestHandleRecord(t *testing.T) {
	sender := &fakeSender{messageID: "m1"}
	store := newFakeStore()
	d := newTestDispatcher(sender, store)

	record := &models.NotificationRecord{
		ID:         "n9",
		Title:      "Order Ready",
		Body:       "Table 3",
		Type:       "order_update",
		TableID:    "T3",
		OrderID:    "O100",
		TargetRole: "waiters",
	}
	outcome, err := d.HandleRecord(context.Background(), "http", record)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSent, outcome)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "waiters", sender.sent[0].Topic)
	assert.Equal(t, true, store.records["n9"]["sent"])
}

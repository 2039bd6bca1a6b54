package repositories

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/pkg/errors"
)

// FirestoreRecordRepository reads and updates notification records in a Firestore collection.
type FirestoreRecordRepository struct {
	collection *firestore.CollectionRef
}

// NewFirestoreRecordRepository creates a repository for the named collection.
func NewFirestoreRecordRepository(client *firestore.Client, collection string) *FirestoreRecordRepository {
	return &FirestoreRecordRepository{collection: client.Collection(collection)}
}

// UpdateStatus writes the delivery status onto the record, touching no other field.
// sentAt is filled in by the Firestore server.
func (r *FirestoreRecordRepository) UpdateStatus(ctx context.Context, recordID string, status models.DeliveryStatus) error {
	wrapMsg := "unable to update notification status"

	doc, err := r.doc(recordID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if _, err := doc.Update(ctx, firestoreStatusUpdates(status)); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// GetRecordFields returns the current fields of the record.
func (r *FirestoreRecordRepository) GetRecordFields(ctx context.Context, recordID string) (map[string]interface{}, error) {
	wrapMsg := "unable to read notification record"

	doc, err := r.doc(recordID)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	snap, err := doc.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return snap.Data(), nil
}

func (r *FirestoreRecordRepository) doc(recordID string) (*firestore.DocumentRef, error) {
	if recordID == "" {
		return nil, errors.New("empty record ID")
	}
	doc := r.collection.Doc(recordID)
	if doc == nil {
		return nil, errors.Errorf("invalid record ID %q", recordID)
	}
	return doc, nil
}

func firestoreStatusUpdates(status models.DeliveryStatus) []firestore.Update {
	if status.Sent {
		return []firestore.Update{
			{Path: models.FieldSent, Value: true},
			{Path: models.FieldSentAt, Value: firestore.ServerTimestamp},
		}
	}
	return []firestore.Update{
		{Path: models.FieldSent, Value: false},
		{Path: models.FieldError, Value: status.Error},
	}
}

package repositories

import (
	"context"

	"github.com/anonto42/order-notify/backend/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRecordRepository reads and updates notification records in a MongoDB collection.
type MongoRecordRepository struct {
	collection *mongo.Collection
}

// NewMongoRecordRepository creates a repository for the named collection.
func NewMongoRecordRepository(db *mongo.Database, collection string) *MongoRecordRepository {
	return &MongoRecordRepository{collection: db.Collection(collection)}
}

// UpdateStatus writes the delivery status onto the record. sentAt is set by the server
// through $currentDate.
func (r *MongoRecordRepository) UpdateStatus(ctx context.Context, recordID string, status models.DeliveryStatus) error {
	wrapMsg := "unable to update notification status"

	result, err := r.collection.UpdateOne(ctx, recordFilter(recordID), mongoStatusUpdate(status))
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if result.MatchedCount == 0 {
		return errors.Wrap(errors.Errorf("notification record %s not found", recordID), wrapMsg)
	}
	return nil
}

// GetRecordFields returns the current fields of the record.
func (r *MongoRecordRepository) GetRecordFields(ctx context.Context, recordID string) (map[string]interface{}, error) {
	wrapMsg := "unable to read notification record"

	var doc bson.M
	err := r.collection.FindOne(ctx, recordFilter(recordID)).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.Wrap(errors.Errorf("notification record %s not found", recordID), wrapMsg)
		}
		return nil, errors.Wrap(err, wrapMsg)
	}
	return map[string]interface{}(doc), nil
}

// recordFilter matches the record ID as a string and, when it looks like one, as an
// ObjectID too, so hex string keys still resolve.
func recordFilter(recordID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(recordID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, recordID}}}
	}
	return bson.M{"_id": recordID}
}

func mongoStatusUpdate(status models.DeliveryStatus) bson.D {
	if status.Sent {
		return bson.D{
			{Key: "$set", Value: bson.D{{Key: models.FieldSent, Value: true}}},
			{Key: "$currentDate", Value: bson.D{{Key: models.FieldSentAt, Value: true}}},
		}
	}
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldSent, Value: false},
			{Key: models.FieldError, Value: status.Error},
		}},
	}
}

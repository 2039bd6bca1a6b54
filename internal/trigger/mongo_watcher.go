package trigger

import (
	"context"
	"fmt"

	"github.com/anonto42/order-notify/backend/internal/dispatcher"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// SourceMongo tags events produced by the Mongo watcher.
const SourceMongo = "mongo"

// MongoWatcher follows a change stream of inserts on a collection.
type MongoWatcher struct {
	collection *mongo.Collection
	handler    Handler
	log        *logrus.Entry
}

// NewMongoWatcher creates a watcher for the named collection. Change streams need a
// replica set or sharded cluster.
func NewMongoWatcher(db *mongo.Database, collection string, h Handler) *MongoWatcher {
	return &MongoWatcher{
		collection: db.Collection(collection),
		handler:    h,
		log:        logrus.WithFields(logrus.Fields{"component": "mongo-watcher", "collection": collection}),
	}
}

// Run follows the change stream until ctx is cancelled.
func (w *MongoWatcher) Run(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	stream, err := w.collection.Watch(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("error opening change stream on %s: %w", w.collection.Name(), err)
	}
	defer stream.Close(context.Background())

	w.log.Info("listening for new notification records")
	for stream.Next(ctx) {
		ev, err := decodeInsert(stream.Current)
		if err != nil {
			w.log.WithError(err).Error("unable to decode change event")
			continue
		}
		handle(ctx, w.handler, ev, w.log)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading change stream on %s: %w", w.collection.Name(), err)
	}
	w.log.Info("stopped listening")
	return nil
}

type insertEvent struct {
	DocumentKey struct {
		ID interface{} `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// decodeInsert turns an insert change event into a dispatcher event.
func decodeInsert(raw bson.Raw) (dispatcher.Event, error) {
	var change insertEvent
	if err := bson.Unmarshal(raw, &change); err != nil {
		return dispatcher.Event{}, err
	}
	if change.DocumentKey.ID == nil {
		return dispatcher.Event{}, fmt.Errorf("change event has no document key")
	}

	fields := map[string]interface{}(change.FullDocument)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	delete(fields, "_id")

	return dispatcher.Event{
		RecordID: documentID(change.DocumentKey.ID),
		Source:   SourceMongo,
		Fields:   fields,
	}, nil
}

func documentID(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

package trigger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/anonto42/order-notify/backend/internal/dispatcher"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SourceFirestore tags events produced by the Firestore watcher.
const SourceFirestore = "firestore"

// snapshotIterator is satisfied by *firestore.QuerySnapshotIterator.
type snapshotIterator interface {
	Next() (*firestore.QuerySnapshot, error)
	Stop()
}

// FirestoreWatcher listens to a collection and hands every added document to a Handler.
type FirestoreWatcher struct {
	collection string
	snapshots  func(ctx context.Context) snapshotIterator
	handler    Handler
	backfill   bool
	log        *logrus.Entry
}

// NewFirestoreWatcher creates a watcher for the named collection. The first snapshot a
// listener receives lists the documents that already exist; those are only handled when
// backfill is set.
func NewFirestoreWatcher(client *firestore.Client, collection string, h Handler, backfill bool) *FirestoreWatcher {
	coll := client.Collection(collection)
	return &FirestoreWatcher{
		collection: collection,
		snapshots: func(ctx context.Context) snapshotIterator {
			return coll.Snapshots(ctx)
		},
		handler:  h,
		backfill: backfill,
		log:      logrus.WithFields(logrus.Fields{"component": "firestore-watcher", "collection": collection}),
	}
}

// Run listens until ctx is cancelled.
func (w *FirestoreWatcher) Run(ctx context.Context) error {
	it := w.snapshots(ctx)
	defer it.Stop()

	w.log.Info("listening for new notification records")
	initial := true
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				w.log.Info("stopped listening")
				return nil
			}
			return fmt.Errorf("error listening to %s: %w", w.collection, err)
		}

		skip := initial && !w.backfill
		initial = false
		if skip {
			w.log.WithField("existing", len(snap.Changes)).Info("ignoring records that existed before startup")
			continue
		}

		for _, ev := range addedEvents(snap.Changes) {
			handle(ctx, w.handler, ev, w.log)
		}
	}
}

// addedEvents keeps the creations in a batch of changes. Modifications, including the
// status writes made by the dispatcher itself, and removals are ignored.
func addedEvents(changes []firestore.DocumentChange) []dispatcher.Event {
	var events []dispatcher.Event
	for _, ch := range changes {
		if ch.Kind != firestore.DocumentAdded || ch.Doc == nil || ch.Doc.Ref == nil {
			continue
		}
		events = append(events, dispatcher.Event{
			RecordID: ch.Doc.Ref.ID,
			Source:   SourceFirestore,
			Fields:   ch.Doc.Data(),
		})
	}
	return events
}

package mongostore

import (
	"context"
	"fmt"
	"sync"

	"github.com/PolarWolf314/nudge/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

type subscription struct {
	out    chan store.Batch
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Batches() <-chan store.Batch { return s.out }

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}

// Subscribe opens a change stream on the query's collection, then loads the
// initial result set. Events are matched against the query client side and
// applied to a local snapshot so every batch carries the full result.
func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	cs, err := s.db.Collection(q.Collection).Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, mapError(err)
	}

	initial, err := s.Query(ctx, q)
	if err != nil {
		_ = cs.Close(context.Background())
		cancel()
		return nil, err
	}

	sub := &subscription{out: make(chan store.Batch), cancel: cancel}
	go s.watch(ctx, q, cs, initial, sub.out)
	return sub, nil
}

func (s *Store) watch(ctx context.Context, q store.Query, cs *mongo.ChangeStream, initial []store.Document, out chan<- store.Batch) {
	defer close(out)
	defer cs.Close(context.Background())

	snapshot := make(map[string]store.Document, len(initial))
	changes := make([]store.Change, len(initial))
	for i, d := range initial {
		snapshot[d.ID] = d
		changes[i] = store.Change{Kind: store.Added, Doc: d}
	}
	if !send(ctx, out, store.Batch{Docs: initial, Changes: changes}) {
		return
	}

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			send(ctx, out, store.Batch{Err: fmt.Errorf("decoding change event: %w", err)})
			return
		}
		change, ok := apply(q, snapshot, ev)
		if !ok {
			continue
		}
		if !send(ctx, out, store.Batch{Docs: sorted(q, snapshot), Changes: []store.Change{change}}) {
			return
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, store.Batch{Err: mapError(err)})
	}
}

func apply(q store.Query, snapshot map[string]store.Document, ev changeEvent) (store.Change, bool) {
	id := fmt.Sprint(normalize(ev.DocumentKey.ID))
	prev, had := snapshot[id]

	switch ev.OperationType {
	case "insert", "update", "replace":
		if ev.FullDocument == nil {
			// Deleted before the lookup ran.
			break
		}
		doc := toDocument(ev.FullDocument)
		if !q.Matches(doc.Fields) {
			break
		}
		snapshot[id] = doc
		if had {
			return store.Change{Kind: store.Modified, Doc: doc}, true
		}
		return store.Change{Kind: store.Added, Doc: doc}, true
	case "delete":
	default:
		return store.Change{}, false
	}

	if !had {
		return store.Change{}, false
	}
	delete(snapshot, id)
	return store.Change{Kind: store.Removed, Doc: prev}, true
}

func sorted(q store.Query, snapshot map[string]store.Document) []store.Document {
	docs := make([]store.Document, 0, len(snapshot))
	for _, d := range snapshot {
		docs = append(docs, d)
	}
	q.Sort(docs)
	return docs
}

func send(ctx context.Context, out chan<- store.Batch, b store.Batch) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

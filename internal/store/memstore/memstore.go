package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/store"
)

// Store is an in-process store.DocumentStore. Subscriptions see every write
// made through the same Store.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	subs        map[*subscription]struct{}

	readFaults map[string]error
	writeFault error
	subscribes map[string]int
	writes     int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: map[string]map[string]map[string]any{},
		subs:        map[*subscription]struct{}{},
		readFaults:  map[string]error{},
		subscribes:  map[string]int{},
	}
}

var _ store.DocumentStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeReadFault(collection); err != nil {
		return store.Document{}, err
	}
	fields, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, fmt.Errorf("%s/%s: %w", collection, id, kerrors.ErrNotFound)
	}
	return store.Document{ID: id, Fields: store.Clone(fields)}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	return s.Batch(ctx, []store.Write{{Kind: store.WriteSet, Collection: collection, ID: id, Fields: fields, Merge: merge}})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.Batch(ctx, []store.Write{{Kind: store.WriteUpdate, Collection: collection, ID: id, Fields: fields}})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, []store.Write{{Kind: store.WriteDelete, Collection: collection, ID: id}})
}

func (s *Store) SetFieldIfAbsent(ctx context.Context, collection, id, path string, value any) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeWriteFault(); err != nil {
		return nil, false, err
	}

	docs := s.collection(collection)
	fields, ok := docs[id]
	if !ok {
		fields = map[string]any{}
		docs[id] = fields
	}
	if existing, ok := store.GetPath(fields, path); ok && existing != nil && existing != "" {
		return existing, false, nil
	}
	store.SetPath(fields, path, value)
	s.writes++
	s.notifyLocked(collection)
	return value, true, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeReadFault(q.Collection); err != nil {
		return nil, err
	}
	return s.resultLocked(q), nil
}

func (s *Store) Batch(ctx context.Context, writes []store.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeWriteFault(); err != nil {
		return err
	}

	for _, w := range writes {
		if w.Kind == store.WriteUpdate {
			if _, ok := s.collections[w.Collection][w.ID]; !ok {
				return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, kerrors.ErrNotFound)
			}
		}
	}

	touched := map[string]bool{}
	for _, w := range writes {
		docs := s.collection(w.Collection)
		switch w.Kind {
		case store.WriteSet:
			existing, ok := docs[w.ID]
			if !w.Merge || !ok {
				docs[w.ID] = store.Clone(w.Fields)
				break
			}
			for k, v := range store.Clone(w.Fields) {
				existing[k] = v
			}
		case store.WriteUpdate:
			existing := docs[w.ID]
			for path, v := range store.Clone(w.Fields) {
				store.SetPath(existing, path, v)
			}
		case store.WriteDelete:
			delete(docs, w.ID)
		}
		s.writes++
		touched[w.Collection] = true
	}
	for c := range touched {
		s.notifyLocked(c)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// FailNextRead makes the next Get, Query or Subscribe on collection return err.
func (s *Store) FailNextRead(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readFaults[collection] = err
}

// FailNextWrite makes the next write of any kind return err.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFault = err
}

// Break terminates every live subscription on collection with err.
func (s *Store) Break(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.query.Collection == collection {
			sub.fail(err)
			delete(s.subs, sub)
		}
	}
}

// Subscribes returns how many subscriptions have been opened on collection.
func (s *Store) Subscribes(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[collection]
}

// Writes returns the number of document writes applied.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ActiveSubscriptions returns the number of open subscriptions.
func (s *Store) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) collection(name string) map[string]map[string]any {
	docs, ok := s.collections[name]
	if !ok {
		docs = map[string]map[string]any{}
		s.collections[name] = docs
	}
	return docs
}

func (s *Store) resultLocked(q store.Query) []store.Document {
	var out []store.Document
	for id, fields := range s.collections[q.Collection] {
		if q.Matches(fields) {
			out = append(out, store.Document{ID: id, Fields: store.Clone(fields)})
		}
	}
	q.Sort(out)
	return out
}

func (s *Store) takeReadFault(collection string) error {
	err, ok := s.readFaults[collection]
	if !ok {
		return nil
	}
	delete(s.readFaults, collection)
	return err
}

func (s *Store) takeWriteFault() error {
	err := s.writeFault
	s.writeFault = nil
	return err
}

func (s *Store) notifyLocked(collection string) {
	for sub := range s.subs {
		if sub.query.Collection != collection {
			continue
		}
		docs := s.resultLocked(sub.query)
		if changes := diff(sub.last, docs); len(changes) > 0 {
			sub.last = index(docs)
			sub.push(store.Batch{Docs: docs, Changes: changes})
		}
	}
}

func diff(last map[string]map[string]any, docs []store.Document) []store.Change {
	var changes []store.Change
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.ID] = true
		prev, ok := last[d.ID]
		switch {
		case !ok:
			changes = append(changes, store.Change{Kind: store.Added, Doc: d})
		case !reflect.DeepEqual(prev, d.Fields):
			changes = append(changes, store.Change{Kind: store.Modified, Doc: d})
		}
	}
	for id, fields := range last {
		if !seen[id] {
			changes = append(changes, store.Change{Kind: store.Removed, Doc: store.Document{ID: id, Fields: store.Clone(fields)}})
		}
	}
	return changes
}

func index(docs []store.Document) map[string]map[string]any {
	m := make(map[string]map[string]any, len(docs))
	for _, d := range docs {
		m[d.ID] = store.Clone(d.Fields)
	}
	return m
}

package memstore

import (
	"context"
	"sync"

	"github.com/PolarWolf314/nudge/internal/store"
)

// Subscribe opens a live query. Batches are queued without bound and
// delivered in order by a per-subscription goroutine, so writers never block
// on a slow consumer.
func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribes[q.Collection]++
	if err := s.takeReadFault(q.Collection); err != nil {
		return nil, err
	}

	sub := &subscription{
		store:  s,
		query:  q,
		out:    make(chan store.Batch),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	docs := s.resultLocked(q)
	sub.last = index(docs)
	initial := make([]store.Change, len(docs))
	for i, d := range docs {
		initial[i] = store.Change{Kind: store.Added, Doc: d}
	}
	sub.push(store.Batch{Docs: docs, Changes: initial})
	s.subs[sub] = struct{}{}

	go sub.pump(ctx)
	return sub, nil
}

type subscription struct {
	store *Store
	query store.Query

	// last is guarded by store.mu.
	last map[string]map[string]any

	mu       sync.Mutex
	queue    []store.Batch
	failed   bool
	notify   chan struct{}
	out      chan store.Batch
	done     chan struct{}
	doneOnce sync.Once
}

func (s *subscription) Batches() <-chan store.Batch {
	return s.out
}

func (s *subscription) Close() {
	s.doneOnce.Do(func() { close(s.done) })
	s.store.mu.Lock()
	delete(s.store.subs, s)
	s.store.mu.Unlock()
}

func (s *subscription) push(b store.Batch) {
	s.mu.Lock()
	if s.failed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, b)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) fail(err error) {
	s.push(store.Batch{Err: err})
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.out)
	defer s.Close()

	for {
		s.mu.Lock()
		var next *store.Batch
		if len(s.queue) > 0 {
			b := s.queue[0]
			s.queue = s.queue[1:]
			next = &b
		}
		s.mu.Unlock()

		if next == nil {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case s.out <- *next:
			if next.Err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

package memstore

import (
	"context"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/store"
)

func nextBatch(t *testing.T, sub store.Subscription) store.Batch {
	t.Helper()
	select {
	case b, ok := <-sub.Batches():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	return store.Batch{}
}

func TestGetSetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "tasks", "t1"); !kerrors.Is(err, kerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, "tasks", "t1", map[string]any{"text": "x"}); !kerrors.Is(err, kerrors.ErrNotFound) {
		t.Fatalf("Update on missing doc: expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "tasks", "t1", map[string]any{"text": "a", "order": 1}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "tasks", "t1", map[string]any{"notes": "n"}, true); err != nil {
		t.Fatalf("Set merge: %v", err)
	}
	if err := s.Update(ctx, "tasks", "t1", map[string]any{"friendContent.bob": "e1:x"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := s.Get(ctx, "tasks", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Fields["text"] != "a" || doc.Fields["notes"] != "n" {
		t.Fatalf("merge lost fields: %v", doc.Fields)
	}
	if v, _ := store.GetPath(doc.Fields, "friendContent.bob"); v != "e1:x" {
		t.Fatalf("dotted update not applied: %v", doc.Fields)
	}

	if err := s.Delete(ctx, "tasks", "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "tasks", "t1"); !kerrors.Is(err, kerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetFieldIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	v, created, err := s.SetFieldIfAbsent(ctx, "userKeys", "alice", "friendKeys.bob", "k1")
	if err != nil || !created || v != "k1" {
		t.Fatalf("first call = %v, %v, %v", v, created, err)
	}
	v, created, err = s.SetFieldIfAbsent(ctx, "userKeys", "alice", "friendKeys.bob", "k2")
	if err != nil || created || v != "k1" {
		t.Fatalf("second call = %v, %v, %v; want existing k1", v, created, err)
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()
	_ = s.Set(ctx, "tasks", "t1", map[string]any{"userId": "alice", "isPrivate": false}, false)

	sub, err := s.Subscribe(ctx, store.NewQuery("tasks").Where(store.Eq("userId", "alice")))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	b := nextBatch(t, sub)
	if len(b.Docs) != 1 || len(b.Changes) != 1 || b.Changes[0].Kind != store.Added {
		t.Fatalf("unexpected initial batch %+v", b)
	}

	_ = s.Set(ctx, "tasks", "t2", map[string]any{"userId": "bob"}, false)
	_ = s.Update(ctx, "tasks", "t1", map[string]any{"isPrivate": true})
	b = nextBatch(t, sub)
	if len(b.Changes) != 1 || b.Changes[0].Kind != store.Modified || b.Changes[0].Doc.ID != "t1" {
		t.Fatalf("expected one modification of t1, got %+v", b.Changes)
	}

	_ = s.Delete(ctx, "tasks", "t1")
	b = nextBatch(t, sub)
	if len(b.Docs) != 0 || len(b.Changes) != 1 || b.Changes[0].Kind != store.Removed {
		t.Fatalf("expected removal, got %+v", b)
	}
}

func TestBreakTerminatesSubscription(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, err := s.Subscribe(ctx, store.NewQuery("tasks"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	nextBatch(t, sub)

	s.Break("tasks", kerrors.ErrQuotaExhausted)
	b := nextBatch(t, sub)
	if !kerrors.Is(b.Err, kerrors.ErrQuotaExhausted) {
		t.Fatalf("expected quota error batch, got %+v", b)
	}
	select {
	case _, ok := <-sub.Batches():
		if ok {
			t.Fatal("expected channel closed after error batch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after error batch")
	}
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := New()

	s.FailNextRead("tasks", kerrors.ErrQuotaExhausted)
	if _, err := s.Subscribe(ctx, store.NewQuery("tasks")); !kerrors.Is(err, kerrors.ErrQuotaExhausted) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if s.Subscribes("tasks") != 1 {
		t.Fatalf("expected subscribe attempt to be counted")
	}

	s.FailNextWrite(kerrors.ErrNetworkUnavailable)
	if err := s.Set(ctx, "tasks", "t1", map[string]any{}, false); !kerrors.Is(err, kerrors.ErrNetworkUnavailable) {
		t.Fatalf("expected injected write error, got %v", err)
	}
	if err := s.Set(ctx, "tasks", "t1", map[string]any{}, false); err != nil {
		t.Fatalf("fault should only apply once: %v", err)
	}
}

func TestSubscribeRejectsLargeIn(t *testing.T) {
	s := New()
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	_, err := s.Subscribe(context.Background(), store.NewQuery("tasks").Where(store.In("userId", ids...)))
	if !kerrors.Is(err, kerrors.ErrTooManyValues) {
		t.Fatalf("expected ErrTooManyValues, got %v", err)
	}
}

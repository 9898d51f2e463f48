package session

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/nudge/internal/backoff"
	"github.com/PolarWolf314/nudge/internal/coordinator"
	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"
	"github.com/PolarWolf314/nudge/internal/store/memstore"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func open(t *testing.T, s *memstore.Store, user string, peers ...string) *Session {
	t.Helper()
	sess, err := Open(context.Background(), Options{
		UserID:      user,
		DisplayName: strings.ToUpper(user[:1]) + user[1:],
		Store:       s,
		Peers:       peers,
		Clock:       backoff.NewFake(epoch),
		Timing:      coordinator.Timing{HealthCheck: time.Hour, PeerCap: 10},
	})
	if err != nil {
		t.Fatalf("Open(%s): %v", user, err)
	}
	t.Cleanup(func() { sess.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sess.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady(%s): %v", user, err)
	}
	return sess
}

func waitFor(t *testing.T, s *Session, what string, cond func(coordinator.Snapshot) bool) coordinator.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := s.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func showing(text string) func(coordinator.Snapshot) bool {
	return func(snap coordinator.Snapshot) bool {
		for _, d := range snap.Tasks {
			if d.Text == text {
				return true
			}
		}
		return false
	}
}

func loadTask(t *testing.T, s *memstore.Store, id string) records.Task {
	t.Helper()
	doc, err := s.Get(context.Background(), records.TasksCollection, id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	task, err := records.DecodeTask(doc.ID, doc.Fields)
	if err != nil {
		t.Fatalf("DecodeTask(%s): %v", id, err)
	}
	return task
}

func friendIDs(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func TestSharedTaskReachesPeerEncrypted(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")

	id, err := alice.AddTask(context.Background(), "Buy milk", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	stored := loadTask(t, s, id)
	if !envelope.LooksEncrypted(stored.Text) || strings.Contains(stored.Text, "Buy milk") {
		t.Fatalf("stored text %q is not encrypted", stored.Text)
	}
	if got := friendIDs(stored.FriendContent); !slices.Equal(got, []string{"bob"}) {
		t.Fatalf("friend content for %v, want [bob]", got)
	}

	waitFor(t, alice, "own task", showing("Buy milk"))
	snap := waitFor(t, bob, "shared task", showing("Buy milk"))
	if snap.Tasks[0].Task.UserID != "alice" {
		t.Fatalf("task owner = %q", snap.Tasks[0].Task.UserID)
	}
}

func TestTogglePrivacyClearsAndRestoresFriendContent(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Plan party", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	waitFor(t, bob, "shared task", showing("Plan party"))

	private, err := alice.TogglePrivacy(ctx, id)
	if err != nil || !private {
		t.Fatalf("TogglePrivacy = %v, %v", private, err)
	}
	if task := loadTask(t, s, id); !task.IsPrivate || len(task.FriendContent) != 0 {
		t.Fatalf("private task kept friend content %v", task.FriendContent)
	}
	waitFor(t, bob, "task hidden", func(snap coordinator.Snapshot) bool { return len(snap.Tasks) == 0 })

	private, err = alice.TogglePrivacy(ctx, id)
	if err != nil || private {
		t.Fatalf("TogglePrivacy = %v, %v", private, err)
	}
	if got := friendIDs(loadTask(t, s, id).FriendContent); !slices.Equal(got, []string{"bob"}) {
		t.Fatalf("friend content for %v after re-sharing", got)
	}
	waitFor(t, bob, "task shared again", showing("Plan party"))
}

func TestSetVisibilityLimitsFriendContent(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob", "carol")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Gift for bob", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := alice.AddComment(ctx, id, "wrap it"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if err := alice.SetVisibility(ctx, id, records.VisibilityExcept, []string{"bob"}); err != nil {
		t.Fatalf("SetVisibility: %v", err)
	}
	task := loadTask(t, s, id)
	if got := friendIDs(task.FriendContent); !slices.Equal(got, []string{"carol"}) {
		t.Fatalf("friend content for %v, want [carol]", got)
	}
	if got := friendIDs(task.Comments[0].FriendContent); !slices.Equal(got, []string{"carol"}) {
		t.Fatalf("comment friend content for %v, want [carol]", got)
	}
	if task.CanView("bob") || !task.CanView("carol") {
		t.Fatalf("visibility %s %v", task.Visibility, task.VisibilityList)
	}
}

func TestCommentOnPeerTaskNotifiesOwner(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Run 5k", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := bob.AddComment(ctx, id, "you got this"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	waitFor(t, alice, "comment", func(snap coordinator.Snapshot) bool {
		return len(snap.Tasks) == 1 && len(snap.Tasks[0].Comments) == 1 &&
			snap.Tasks[0].Comments[0].Plaintext == "you got this"
	})

	docs, err := s.Query(ctx, store.NewQuery(records.NotificationsCollection).Where(store.Eq("userId", "alice")))
	if err != nil || len(docs) != 1 {
		t.Fatalf("notifications = %d, %v", len(docs), err)
	}
	n, err := records.DecodeNotification(docs[0].ID, docs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	if n.Type != records.NotificationComment || n.FromUserID != "bob" || n.Message != "Bob commented on your task" {
		t.Fatalf("notification = %+v", n)
	}
	if got := alice.keys.DecryptFromFriend(ctx, n.CommentText, "bob"); got != "you got this" {
		t.Fatalf("comment excerpt = %q", got)
	}
	if got := alice.keys.DecryptFromFriend(ctx, n.TaskText, "bob"); got != "Run 5k" {
		t.Fatalf("task excerpt = %q", got)
	}
}

func TestCommentRequiresAccess(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Diary", records.VisibilityPrivate, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := bob.AddComment(ctx, id, "peek"); !kerrors.Is(err, kerrors.ErrNotFound) {
		t.Fatalf("AddComment on private task = %v, want ErrNotFound", err)
	}
}

func TestMutationsRequireOwnership(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Buy milk", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{"update text", func() error { return bob.UpdateTaskText(ctx, id, "Buy beer") }},
		{"update notes", func() error { return bob.UpdateNotes(ctx, id, "x") }},
		{"complete", func() error { _, err := bob.ToggleComplete(ctx, id); return err }},
		{"privacy", func() error { _, err := bob.TogglePrivacy(ctx, id); return err }},
		{"delete", func() error { return bob.DeleteTask(ctx, id) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !kerrors.Is(err, kerrors.ErrNotOwner) {
				t.Fatalf("got %v, want ErrNotOwner", err)
			}
		})
	}
}

func TestUpdateTextAndNotesReachPeer(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Buy milk", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := alice.UpdateTaskText(ctx, id, "Buy oat milk"); err != nil {
		t.Fatalf("UpdateTaskText: %v", err)
	}
	if err := alice.UpdateNotes(ctx, id, "the barista kind"); err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}

	waitFor(t, bob, "updated task", func(snap coordinator.Snapshot) bool {
		return len(snap.Tasks) == 1 && snap.Tasks[0].Text == "Buy oat milk" && snap.Tasks[0].Notes == "the barista kind"
	})
	if task := loadTask(t, s, id); !envelope.LooksEncrypted(task.Notes) {
		t.Fatalf("notes stored as %q", task.Notes)
	}
}

func TestToggleCompleteAndSoftDelete(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice")
	ctx := context.Background()

	id, err := alice.AddTask(ctx, "Water plants", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	done, err := alice.ToggleComplete(ctx, id)
	if err != nil || !done {
		t.Fatalf("ToggleComplete = %v, %v", done, err)
	}
	if task := loadTask(t, s, id); !task.Completed || task.CompletedAt == nil || !task.CompletedAt.Equal(epoch) {
		t.Fatalf("completed task = %+v", task)
	}
	if done, err = alice.ToggleComplete(ctx, id); err != nil || done {
		t.Fatalf("ToggleComplete = %v, %v", done, err)
	}
	if task := loadTask(t, s, id); task.Completed || task.CompletedAt != nil {
		t.Fatalf("reopened task = %+v", task)
	}

	if err := alice.DeleteTask(ctx, id); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	waitFor(t, alice, "task removed", func(snap coordinator.Snapshot) bool { return len(snap.Tasks) == 0 })
	deleted, err := alice.DeletedTasks(ctx)
	if err != nil || len(deleted) != 1 || deleted[0].Text != "Water plants" {
		t.Fatalf("DeletedTasks = %+v, %v", deleted, err)
	}

	if err := alice.RestoreTask(ctx, id); err != nil {
		t.Fatalf("RestoreTask: %v", err)
	}
	waitFor(t, alice, "task restored", showing("Water plants"))
}

func TestAddTaskOrdersAfterOpenTasks(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice")
	ctx := context.Background()

	first, _ := alice.AddTask(ctx, "one", records.VisibilityEveryone, nil)
	second, _ := alice.AddTask(ctx, "two", records.VisibilityEveryone, nil)
	if _, err := alice.ToggleComplete(ctx, second); err != nil {
		t.Fatalf("ToggleComplete: %v", err)
	}
	third, err := alice.AddTask(ctx, "three", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if got := []int64{loadTask(t, s, first).Order, loadTask(t, s, second).Order, loadTask(t, s, third).Order}; !slices.Equal(got, []int64{1, 2, 2}) {
		t.Fatalf("orders = %v, want [1 2 2]", got)
	}
}

func TestAddTaskRejectsEmptyText(t *testing.T) {
	alice := open(t, memstore.New(), "alice")
	if _, err := alice.AddTask(context.Background(), "  ", records.VisibilityEveryone, nil); err == nil {
		t.Fatal("AddTask accepted empty text")
	}
}

func TestPeersMergeProfileFriends(t *testing.T) {
	s := memstore.New()
	err := s.Set(context.Background(), records.UsersCollection, "alice", map[string]any{
		"friends": []any{"bob", "alice", "carol"},
	}, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	alice := open(t, s, "alice", "carol", "dave")
	if got := alice.Peers(); !slices.Equal(got, []string{"bob", "carol", "dave"}) {
		t.Fatalf("Peers() = %v", got)
	}

	alice.SetPeers([]string{"erin", "erin", "alice"})
	if got := alice.Peers(); !slices.Equal(got, []string{"erin"}) {
		t.Fatalf("Peers() after SetPeers = %v", got)
	}
}

func TestEncourage(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	if err := alice.Encourage(ctx, "carol", "hi"); err == nil {
		t.Fatal("Encourage accepted an unlinked peer")
	}
	if err := alice.Encourage(ctx, "bob", "keep going"); err != nil {
		t.Fatalf("Encourage: %v", err)
	}

	docs, err := s.Query(ctx, store.NewQuery(records.NotificationsCollection).Where(store.Eq("userId", "bob")))
	if err != nil || len(docs) != 1 {
		t.Fatalf("notifications = %d, %v", len(docs), err)
	}
	n, err := records.DecodeNotification(docs[0].ID, docs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeNotification: %v", err)
	}
	if n.Type != records.NotificationEncouragement {
		t.Fatalf("type = %q", n.Type)
	}
	if got := bob.keys.DecryptFromFriend(ctx, n.CommentText, "alice"); got != "keep going" {
		t.Fatalf("message = %q", got)
	}
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	alice := open(t, memstore.New(), "alice")
	if err := alice.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := alice.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := alice.AddTask(context.Background(), "late", records.VisibilityEveryone, nil); !kerrors.Is(err, kerrors.ErrSessionClosed) {
		t.Fatalf("AddTask after Close = %v", err)
	}
	if _, ok := <-alice.Tasks(); ok {
		// Drain the final snapshot; the channel must then be closed.
		if _, ok := <-alice.Tasks(); ok {
			t.Fatal("Tasks channel still open after Close")
		}
	}
}

func TestOpenRequiresUser(t *testing.T) {
	if _, err := Open(context.Background(), Options{Store: memstore.New()}); !kerrors.Is(err, kerrors.ErrNotSignedIn) {
		t.Fatalf("Open without user = %v", err)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	s := memstore.New()
	alice := open(t, s, "alice", "bob")
	bob := open(t, s, "bob", "alice")
	ctx := context.Background()

	if err := alice.Encourage(ctx, "bob", "first"); err != nil {
		t.Fatalf("Encourage: %v", err)
	}
	alice.clock.(*backoff.Fake).Advance(time.Minute)
	if err := alice.Encourage(ctx, "bob", "second"); err != nil {
		t.Fatalf("Encourage: %v", err)
	}

	ps, err := bob.Notifications(ctx)
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("got %d notifications, want 2", len(ps))
	}
	if ps[0].CommentText != "second" || ps[1].CommentText != "first" {
		t.Fatalf("order = %q, %q", ps[0].CommentText, ps[1].CommentText)
	}
	if ps[0].NotificationID == "" || ps[0].FromUserID != "alice" || ps[0].Type != records.NotificationEncouragement {
		t.Fatalf("payload = %+v", ps[0])
	}

	if ps, err := alice.Notifications(ctx); err != nil || len(ps) != 0 {
		t.Fatalf("alice notifications = %v, %v", ps, err)
	}
}

func TestWritesProceedWhileKeysLoad(t *testing.T) {
	s := memstore.New()
	s.FailNextRead(records.UserKeysCollection, kerrors.ErrNetworkUnavailable)
	alice, err := Open(context.Background(), Options{
		UserID: "alice",
		Store:  s,
		Peers:  []string{"bob"},
		Clock:  backoff.NewFake(epoch),
		Timing: coordinator.Timing{HealthCheck: time.Hour, PeerCap: 10},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { alice.Close(context.Background()) })
	ctx := context.Background()

	// The failed key read leaves initialisation waiting on the fake clock.
	id, err := alice.AddTask(ctx, "Buy milk", records.VisibilityEveryone, nil)
	if err != nil {
		t.Fatalf("AddTask while keys load: %v", err)
	}
	if alice.IsReady() {
		t.Fatal("keys loaded despite the failed read")
	}
	if got := loadTask(t, s, id); got.Text != "Buy milk" || len(got.FriendContent) != 0 {
		t.Fatalf("stored task = %+v, want the plaintext with no friend copies", got)
	}

	if err := alice.UpdateTaskText(ctx, id, "Buy oat milk"); err != nil {
		t.Fatalf("UpdateTaskText while keys load: %v", err)
	}
	if err := alice.SetVisibility(ctx, id, records.VisibilityPrivate, nil); err != nil {
		t.Fatalf("SetVisibility while keys load: %v", err)
	}
	if got := loadTask(t, s, id); got.Text != "Buy oat milk" || !got.IsPrivate {
		t.Fatalf("stored task = %+v", got)
	}
}

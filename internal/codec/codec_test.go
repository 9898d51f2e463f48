package codec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/nudge/internal/envelope"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store/memstore"
)

type user struct {
	keys  *keys.Custodian
	codec *Codec
}

func newUsers(t *testing.T, ids ...string) map[string]user {
	t.Helper()
	s := memstore.New()
	out := map[string]user{}
	for _, id := range ids {
		k := keys.NewCustodian(keys.Options{UserID: id, Store: s})
		if err := k.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize(%s): %v", id, err)
		}
		out[id] = user{keys: k, codec: New(k, logger.Logger{})}
	}
	return out
}

func TestBuyMilkScenario(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob", "carol")

	bundle, err := u["alice"].codec.EncodeForWrite(ctx, "Buy milk", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("EncodeForWrite: %v", err)
	}
	if !envelope.LooksEncrypted(bundle.Owner) || len(bundle.Friends) != 1 {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if got := u["alice"].keys.DecryptForSelf(bundle.Owner); got != "Buy milk" {
		t.Fatalf("owner ciphertext decrypts to %q", got)
	}
	if got := u["bob"].keys.DecryptFromFriend(ctx, bundle.Friends["bob"], "alice"); got != "Buy milk" {
		t.Fatalf("friend ciphertext decrypts to %q", got)
	}

	task := records.Task{ID: "t1", UserID: "alice", Text: bundle.Owner, FriendContent: bundle.Friends}
	if got := u["bob"].codec.DecodeTask(ctx, task, "bob"); got.Text != "Buy milk" {
		t.Fatalf("bob sees %q", got.Text)
	}
	if got := u["alice"].codec.DecodeTask(ctx, task, "alice"); got.Text != "Buy milk" {
		t.Fatalf("alice sees %q", got.Text)
	}
	if got := u["carol"].codec.DecodeTask(ctx, task, "carol"); got.Text != keys.Placeholder {
		t.Fatalf("carol sees %q, want placeholder", got.Text)
	}
}

func TestEncodeForWriteRejectsOtherOwner(t *testing.T) {
	u := newUsers(t, "alice")
	_, err := u["alice"].codec.EncodeForWrite(context.Background(), "x", "bob", nil)
	if !kerrors.Is(err, kerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestEncodeForWriteBeforeKeysLoad(t *testing.T) {
	k := keys.NewCustodian(keys.Options{UserID: "alice", Store: memstore.New()})
	c := New(k, logger.Logger{})

	bundle, err := c.EncodeForWrite(context.Background(), "Buy milk", "alice", nil)
	if err != nil {
		t.Fatalf("EncodeForWrite: %v", err)
	}
	if bundle.Owner != "Buy milk" || len(bundle.Friends) != 0 {
		t.Fatalf("bundle = %+v, want the plaintext owner copy", bundle)
	}
}

func TestPrivateTaskIsNotDecryptedForPeers(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob")

	task := records.Task{ID: "t1", UserID: "alice"}
	task.SetVisibility(records.VisibilityPrivate, nil)
	if err := u["alice"].codec.SealTask(ctx, &task, "Diary", "notes", []string{"bob"}); err != nil {
		t.Fatalf("SealTask: %v", err)
	}
	if len(task.FriendContent) != 0 || len(task.NotesFriendContent) != 0 {
		t.Fatalf("private task carries friend content: %+v", task)
	}

	got := u["bob"].codec.DecodeTask(ctx, task, "bob")
	if !got.Hidden || got.Text != PrivatePlaceholder || got.Notes != "" {
		t.Fatalf("unexpected decode for peer %+v", got)
	}
	if own := u["alice"].codec.DecodeTask(ctx, task, "alice"); own.Text != "Diary" || own.Notes != "notes" {
		t.Fatalf("owner decode %+v", own)
	}
}

func TestSealTaskHonoursVisibilityList(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob", "carol")

	task := records.Task{ID: "t1", UserID: "alice"}
	task.SetVisibility(records.VisibilityOnly, []string{"carol"})
	if err := u["alice"].codec.SealTask(ctx, &task, "Surprise party", "", []string{"bob", "carol"}); err != nil {
		t.Fatalf("SealTask: %v", err)
	}
	if _, ok := task.FriendContent["bob"]; ok {
		t.Fatal("bob received friend content despite visibility list")
	}
	if got := u["carol"].codec.DecodeTask(ctx, task, "carol"); got.Text != "Surprise party" {
		t.Fatalf("carol sees %q", got.Text)
	}
	if got := u["bob"].codec.DecodeTask(ctx, task, "bob"); !got.Hidden {
		t.Fatalf("bob should see the task as hidden, got %+v", got)
	}
}

func TestCommentsDecodeIndependently(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob")

	task := records.Task{ID: "t1", UserID: "alice"}
	if err := u["alice"].codec.SealTask(ctx, &task, "Run 5k", "", []string{"bob"}); err != nil {
		t.Fatalf("SealTask: %v", err)
	}

	fromBob, err := u["bob"].codec.EncodeComment(ctx, "go go go", task, "bob", "Bob", nil)
	if err != nil {
		t.Fatalf("EncodeComment(bob): %v", err)
	}
	fromAlice, err := u["alice"].codec.EncodeComment(ctx, "done!", task, "alice", "Alice", []string{"bob"})
	if err != nil {
		t.Fatalf("EncodeComment(alice): %v", err)
	}
	if fromAlice.FriendContent["bob"] == "" {
		t.Fatal("owner comment missing friend content for bob")
	}
	corrupt := records.Comment{ID: "bad", UserID: "bob", Text: "e1:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Timestamp: time.Now()}
	task.Comments = []records.Comment{fromBob, corrupt, fromAlice}

	for _, viewer := range []string{"alice", "bob"} {
		d := u[viewer].codec.DecodeTask(ctx, task, viewer)
		if d.Text != "Run 5k" {
			t.Fatalf("%s: task text %q", viewer, d.Text)
		}
		want := []string{"go go go", keys.Placeholder, "done!"}
		for i, w := range want {
			if d.Comments[i].Plaintext != w {
				t.Errorf("%s: comment %d = %q, want %q", viewer, i, d.Comments[i].Plaintext, w)
			}
		}
	}
}

func TestEncodeCommentLimit(t *testing.T) {
	u := newUsers(t, "alice")
	task := records.Task{ID: "t1", UserID: "alice"}
	_, err := u["alice"].codec.EncodeComment(context.Background(), strings.Repeat("x", records.MaxCommentLength+1), task, "alice", "", nil)
	if err == nil {
		t.Fatal("expected error for oversized comment")
	}
}

func TestMissingPeersAndBackfill(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob", "carol")

	task := records.Task{ID: "t1", UserID: "alice"}
	if err := u["alice"].codec.SealTask(ctx, &task, "Water plants", "twice", []string{"bob"}); err != nil {
		t.Fatalf("SealTask: %v", err)
	}

	peers := []string{"bob", "carol"}
	missing := MissingPeers(task, peers)
	if len(missing) != 1 || missing[0] != "carol" {
		t.Fatalf("MissingPeers = %v", missing)
	}

	decoded := u["alice"].codec.DecodeTask(ctx, task, "alice")
	fields, covered := u["alice"].codec.BackfillFields(ctx, decoded, missing)
	if len(covered) != 1 || covered[0] != "carol" {
		t.Fatalf("covered = %v", covered)
	}
	ct, ok := fields["friendContent.carol"].(string)
	if !ok {
		t.Fatalf("missing friendContent.carol in %v", fields)
	}
	notes, ok := fields["notesFriendContent.carol"].(string)
	if !ok {
		t.Fatalf("missing notesFriendContent.carol in %v", fields)
	}
	task.FriendContent["carol"] = ct
	task.NotesFriendContent["carol"] = notes

	got := u["carol"].codec.DecodeTask(ctx, task, "carol")
	if got.Text != "Water plants" || got.Notes != "twice" {
		t.Fatalf("carol after backfill sees %+v", got)
	}
	if len(MissingPeers(task, peers)) != 0 {
		t.Fatal("peers still missing after backfill")
	}
}

func TestLegacyPlaintextPassesThrough(t *testing.T) {
	ctx := context.Background()
	u := newUsers(t, "alice", "bob")
	task := records.Task{ID: "t1", UserID: "alice", Text: "legacy plaintext"}

	if got := u["bob"].codec.DecodeTask(ctx, task, "bob"); got.Text != "legacy plaintext" {
		t.Fatalf("bob sees %q", got.Text)
	}
	if IsEncrypted(task) {
		t.Fatal("IsEncrypted true for plaintext task")
	}
}

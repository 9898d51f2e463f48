package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/nudge/internal/codec"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"

	"github.com/google/uuid"
)

// AddTask encrypts text and creates a task with visibility v. list names the
// peers for VisibilityOnly and VisibilityExcept. It returns the new task id.
func (s *Session) AddTask(ctx context.Context, text string, v records.Visibility, list []string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("task text is empty")
	}
	if v == "" {
		v = records.VisibilityEveryone
	}

	order, err := s.nextOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read tasks: %w", err)
	}

	t := records.Task{
		ID:        uuid.NewString(),
		UserID:    s.userID,
		CreatedAt: s.clock.Now().UTC(),
		Order:     order,
	}
	t.SetVisibility(v, list)
	if err := s.codec.SealTask(ctx, &t, text, "", s.Peers()); err != nil {
		return "", fmt.Errorf("failed to encrypt task: %w", err)
	}
	if err := s.store.Set(ctx, records.TasksCollection, t.ID, t.Fields(), false); err != nil {
		return "", fmt.Errorf("failed to save task: %w", err)
	}
	s.wrote()
	s.log.Debugf("added task %s (%s)", t.ID, v)
	return t.ID, nil
}

// UpdateTaskText replaces the text of an own task.
func (s *Session) UpdateTaskText(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("task text is empty")
	}
	t, err := s.ownTask(ctx, id)
	if err != nil {
		return err
	}
	b, err := s.codec.EncodeForWrite(ctx, text, s.userID, t.AllowedPeers(s.Peers()))
	if err != nil {
		return fmt.Errorf("failed to encrypt task: %w", err)
	}
	return s.update(ctx, id, map[string]any{
		"text":          b.Owner,
		"friendContent": records.StringMap(b.Friends),
	})
}

// UpdateNotes replaces the notes of an own task. Empty notes clear them.
func (s *Session) UpdateNotes(ctx context.Context, id, notes string) error {
	t, err := s.ownTask(ctx, id)
	if err != nil {
		return err
	}
	if notes == "" {
		return s.update(ctx, id, map[string]any{"notes": "", "notesFriendContent": map[string]any{}})
	}
	b, err := s.codec.EncodeForWrite(ctx, notes, s.userID, t.AllowedPeers(s.Peers()))
	if err != nil {
		return fmt.Errorf("failed to encrypt notes: %w", err)
	}
	return s.update(ctx, id, map[string]any{
		"notes":              b.Owner,
		"notesFriendContent": records.StringMap(b.Friends),
	})
}

// SetVisibility changes who may read an own task. Making a task private
// clears every friend copy; widening it re-encrypts the text, notes and the
// owner's comments for each peer now allowed.
func (s *Session) SetVisibility(ctx context.Context, id string, v records.Visibility, list []string) error {
	t, err := s.ownTask(ctx, id)
	if err != nil {
		return err
	}
	return s.setVisibility(ctx, t, v, list)
}

// TogglePrivacy flips an own task between private and visible to everyone
// and returns whether it is now private.
func (s *Session) TogglePrivacy(ctx context.Context, id string) (bool, error) {
	t, err := s.ownTask(ctx, id)
	if err != nil {
		return false, err
	}
	v := records.VisibilityPrivate
	if t.EffectiveVisibility() == records.VisibilityPrivate {
		v = records.VisibilityEveryone
	}
	if err := s.setVisibility(ctx, t, v, nil); err != nil {
		return false, err
	}
	return v == records.VisibilityPrivate, nil
}

func (s *Session) setVisibility(ctx context.Context, t records.Task, v records.Visibility, list []string) error {
	d := s.codec.DecodeTask(ctx, t, s.userID)
	t.SetVisibility(v, list)

	fields := map[string]any{
		"visibility":     string(v),
		"isPrivate":      t.IsPrivate,
		"visibilityList": records.StringSlice(t.VisibilityList),
	}

	if t.IsPrivate {
		fields["friendContent"] = map[string]any{}
		fields["notesFriendContent"] = map[string]any{}
		for i := range t.Comments {
			t.Comments[i].FriendContent = nil
		}
	} else {
		if d.Undecryptable() || d.Notes == keys.Placeholder {
			return fmt.Errorf("cannot re-share task %s: %w", t.ID, kerrors.ErrDecryptFailed)
		}
		peers := s.Peers()
		if err := s.codec.SealTask(ctx, &t, d.Text, d.Notes, peers); err != nil {
			return fmt.Errorf("failed to encrypt task: %w", err)
		}
		fields["text"] = t.Text
		fields["notes"] = t.Notes
		fields["friendContent"] = records.StringMap(t.FriendContent)
		fields["notesFriendContent"] = records.StringMap(t.NotesFriendContent)
		s.reshareComments(ctx, &t, d, t.AllowedPeers(peers))
	}
	if len(t.Comments) > 0 {
		fields["comments"] = records.CommentsValue(t.Comments)
	}
	return s.update(ctx, t.ID, fields)
}

// reshareComments re-encrypts the owner's readable comments for allowed.
// Comments by peers are encrypted for the owner alone and stay as they are.
func (s *Session) reshareComments(ctx context.Context, t *records.Task, d codec.DecodedTask, allowed []string) {
	for i, c := range d.Comments {
		if c.UserID != t.UserID || c.Plaintext == keys.Placeholder {
			continue
		}
		b, err := s.codec.EncodeForWrite(ctx, c.Plaintext, t.UserID, allowed)
		if err != nil {
			s.log.Warnf("leaving comment %s on task %s unshared: %v", c.ID, t.ID, err)
			continue
		}
		t.Comments[i].Text = b.Owner
		t.Comments[i].FriendContent = b.Friends
		if len(b.Friends) == 0 {
			t.Comments[i].FriendContent = nil
		}
	}
}

// ToggleComplete flips the completed flag of an own task and returns the new
// value.
func (s *Session) ToggleComplete(ctx context.Context, id string) (bool, error) {
	t, err := s.ownTask(ctx, id)
	if err != nil {
		return false, err
	}
	completed := !t.Completed
	fields := map[string]any{"completed": completed, "completedAt": nil}
	if completed {
		fields["completedAt"] = s.clock.Now().UTC()
	}
	return completed, s.update(ctx, id, fields)
}

// DeleteTask soft-deletes an own task. It leaves the view but can be
// restored.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.ownTask(ctx, id); err != nil {
		return err
	}
	return s.update(ctx, id, map[string]any{"deleted": true, "deletedAt": s.clock.Now().UTC()})
}

// RestoreTask undoes DeleteTask.
func (s *Session) RestoreTask(ctx context.Context, id string) error {
	if _, err := s.ownTask(ctx, id); err != nil {
		return err
	}
	return s.update(ctx, id, map[string]any{"deleted": false, "deletedAt": nil})
}

// DeletedTasks returns the user's soft-deleted tasks, decrypted.
func (s *Session) DeletedTasks(ctx context.Context) ([]codec.DecodedTask, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	q := store.NewQuery(records.TasksCollection).
		Where(store.Eq("userId", s.userID)).
		Where(store.Eq("deleted", true))
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted tasks: %w", err)
	}
	var out []codec.DecodedTask
	for _, doc := range docs {
		t, err := records.DecodeTask(doc.ID, doc.Fields)
		if err != nil {
			s.log.Warnf("skipping task %s: %v", doc.ID, err)
			continue
		}
		out = append(out, s.codec.DecodeTask(ctx, t, s.userID))
	}
	return out, nil
}

func (s *Session) getTask(ctx context.Context, id string) (records.Task, error) {
	if err := s.check(); err != nil {
		return records.Task{}, err
	}
	doc, err := s.store.Get(ctx, records.TasksCollection, id)
	if err != nil {
		return records.Task{}, fmt.Errorf("failed to read task %s: %w", id, err)
	}
	return records.DecodeTask(doc.ID, doc.Fields)
}

func (s *Session) ownTask(ctx context.Context, id string) (records.Task, error) {
	t, err := s.getTask(ctx, id)
	if err != nil {
		return records.Task{}, err
	}
	if t.UserID != s.userID {
		return records.Task{}, kerrors.ErrNotOwner
	}
	return t, nil
}

func (s *Session) update(ctx context.Context, id string, fields map[string]any) error {
	if err := s.store.Update(ctx, records.TasksCollection, id, fields); err != nil {
		return fmt.Errorf("failed to save task %s: %w", id, err)
	}
	s.wrote()
	return nil
}

// nextOrder places a new task after the user's open tasks.
func (s *Session) nextOrder(ctx context.Context) (int64, error) {
	docs, err := s.store.Query(ctx, store.NewQuery(records.TasksCollection).Where(store.Eq("userId", s.userID)))
	if err != nil {
		return 0, err
	}
	var max int64
	for _, doc := range docs {
		t, err := records.DecodeTask(doc.ID, doc.Fields)
		if err != nil || t.Completed || t.Deleted {
			continue
		}
		if t.Order > max {
			max = t.Order
		}
	}
	return max + 1, nil
}

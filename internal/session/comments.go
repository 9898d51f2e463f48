package session

import (
	"context"
	"fmt"
	"slices"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"

	"github.com/google/uuid"
)

// excerptLength bounds the task and comment text copied into notifications.
const excerptLength = 100

// AddComment adds an encrypted comment to a task owned by the user or shared
// with the user and returns the comment id. Commenting on a peer's task also
// notifies the owner.
func (s *Session) AddComment(ctx context.Context, taskID, text string) (string, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	if t.UserID != s.userID && (!t.CanView(s.userID) || !slices.Contains(s.Peers(), t.UserID)) {
		return "", fmt.Errorf("task %s is not shared with you: %w", taskID, kerrors.ErrNotFound)
	}

	c, err := s.codec.EncodeComment(ctx, text, t, s.userID, s.name, s.Peers())
	if err != nil {
		return "", fmt.Errorf("failed to encrypt comment: %w", err)
	}
	comments := append(t.Comments, c)
	if err := s.update(ctx, taskID, map[string]any{"comments": records.CommentsValue(comments)}); err != nil {
		return "", err
	}

	if t.UserID != s.userID {
		s.notifyComment(ctx, t, text)
	}
	return c.ID, nil
}

// notifyComment writes the comment notification for the task owner. The
// excerpts are encrypted with the key shared with the owner; the notification
// is still written without them if that fails.
func (s *Session) notifyComment(ctx context.Context, t records.Task, text string) {
	taskText := s.codec.DecodeTask(ctx, t, s.userID).Text
	if taskText == keys.Placeholder {
		taskText = ""
	}
	n := records.Notification{
		UserID:       t.UserID,
		Type:         records.NotificationComment,
		Title:        "New comment",
		Message:      fmt.Sprintf("%s commented on your task", s.name),
		TaskID:       t.ID,
		FromUserID:   s.userID,
		FromUserName: s.name,
		CreatedAt:    s.clock.Now().UTC(),
	}
	var err error
	if n.TaskText, err = s.codec.EncryptNotificationText(ctx, excerpt(taskText), t.UserID); err != nil {
		s.log.Warnf("sending comment notification without excerpts: %v", err)
		n.TaskText = ""
	} else if n.CommentText, err = s.codec.EncryptNotificationText(ctx, excerpt(text), t.UserID); err != nil {
		s.log.Warnf("sending comment notification without excerpts: %v", err)
		n.TaskText, n.CommentText = "", ""
	}
	if err := s.store.Set(ctx, records.NotificationsCollection, uuid.NewString(), n.Fields(), false); err != nil {
		s.log.Warnf("failed to notify %s of comment on %s: %v", t.UserID, t.ID, err)
	}
}

// Encourage sends a linked peer an encouragement notification carrying an
// encrypted message.
func (s *Session) Encourage(ctx context.Context, peerID, message string) error {
	if err := s.check(); err != nil {
		return err
	}
	if !slices.Contains(s.Peers(), peerID) {
		return fmt.Errorf("%s is not a linked peer", peerID)
	}
	if len(message) > records.MaxCommentLength {
		return fmt.Errorf("message is %d characters, limit is %d", len(message), records.MaxCommentLength)
	}
	ct, err := s.codec.EncryptNotificationText(ctx, message, peerID)
	if err != nil {
		return fmt.Errorf("failed to encrypt message: %w", err)
	}
	n := records.Notification{
		UserID:       peerID,
		Type:         records.NotificationEncouragement,
		Title:        "Encouragement",
		Message:      fmt.Sprintf("%s sent you encouragement", s.name),
		FromUserID:   s.userID,
		FromUserName: s.name,
		CommentText:  ct,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.Set(ctx, records.NotificationsCollection, uuid.NewString(), n.Fields(), false); err != nil {
		return fmt.Errorf("failed to send encouragement: %w", err)
	}
	return nil
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLength {
		return s
	}
	return string(r[:excerptLength-1]) + "…"
}

package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/store"
)

// Notifications returns the push payloads of the user's notifications, newest
// first, with the excerpts decrypted by the key shared with each sender.
// Excerpts that cannot be decrypted become keys.Placeholder.
func (s *Session) Notifications(ctx context.Context) ([]records.PushPayload, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, store.NewQuery(records.NotificationsCollection).Where(store.Eq("userId", s.userID)))
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	var ns []records.Notification
	for _, doc := range docs {
		n, err := records.DecodeNotification(doc.ID, doc.Fields)
		if err != nil {
			s.log.Warnf("skipping notification %s: %v", doc.ID, err)
			continue
		}
		ns = append(ns, n)
	}
	slices.SortStableFunc(ns, func(a, b records.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	out := make([]records.PushPayload, 0, len(ns))
	for _, n := range ns {
		p := records.PushPayloadFor(n)
		if p.FromUserID != "" {
			p.TaskText = s.open(ctx, p.TaskText, p.FromUserID)
			p.CommentText = s.open(ctx, p.CommentText, p.FromUserID)
			p.Message = s.open(ctx, p.Message, p.FromUserID)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) open(ctx context.Context, payload, peerID string) string {
	if payload == "" {
		return ""
	}
	return s.keys.DecryptFromFriend(ctx, payload, peerID)
}

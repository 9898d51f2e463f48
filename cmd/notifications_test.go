package cmd

import (
	"testing"

	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"
)

func TestRenderNotifications(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Cleanup(ResetGlobalState)

	tests := []struct {
		name string
		ps   []records.PushPayload
		want string
	}{
		{
			name: "none",
			want: "(No notifications)",
		},
		{
			name: "decrypted",
			ps: []records.PushPayload{
				{Type: records.NotificationEncouragement, Title: "Encouragement", CommentText: "you got this"},
				{Type: records.NotificationComment, Title: "New comment", FromUserName: "Bob", CommentText: "on it"},
			},
			want: "  'Encouragement' you got this\n  'New comment' Bob: \"on it\"",
		},
		{
			name: "undecryptable excerpt",
			ps: []records.PushPayload{
				{Type: records.NotificationComment, Title: "New comment", FromUserName: "Bob", CommentText: keys.Placeholder},
			},
			want: "  'New comment' Bob: \"[Message]\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderNotifications(tt.ps); got != tt.want {
				t.Errorf("renderNotifications() = %q, want %q", got, tt.want)
			}
		})
	}
}

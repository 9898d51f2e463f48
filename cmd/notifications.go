package cmd

import (
	"context"
	"strings"

	"github.com/PolarWolf314/nudge/internal/bridge"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"

	"github.com/spf13/cobra"
)

// NotificationsCmd lists the signed-in user's notifications.
var NotificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List your notifications, newest first",
	Long: `Lists comment and encouragement notifications sent to you, decrypting
their excerpts with the keys you share with each sender.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting notifications command")
		return withSession("Loading notifications...", func(ctx context.Context, sess *session.Session) (string, error) {
			ps, err := sess.Notifications(ctx)
			if err != nil {
				return "", err
			}
			Logger.Debugf("Loaded %d notifications", len(ps))
			return renderNotifications(ps), nil
		})
	},
}

func init() {
	addCommonFlags(NotificationsCmd)
}

func renderNotifications(ps []records.PushPayload) string {
	if len(ps) == 0 {
		return ui.Muted.Sprint("No notifications")
	}
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		title, body := bridge.Format(p)
		lines = append(lines, "  "+ui.Highlight.Sprint(title)+" "+body)
	}
	return strings.Join(lines, "\n")
}

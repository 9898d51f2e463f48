package cmd

import (
	"context"
	"strings"

	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"

	"github.com/spf13/cobra"
)

// EncourageCmd sends an encrypted note of encouragement to a peer.
var EncourageCmd = &cobra.Command{
	Use:   "encourage <peer-id> <message>",
	Short: "Send a peer an encrypted note of encouragement",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting encourage command")
		peer, message := args[0], strings.Join(args[1:], " ")
		return withSession("Sending encouragement...", func(ctx context.Context, sess *session.Session) (string, error) {
			if err := sess.Encourage(ctx, peer, message); err != nil {
				return "", err
			}
			return ui.Done("Encouragement sent to " + ui.Highlight.Sprint(peer)), nil
		})
	},
}

func init() {
	addCommonFlags(EncourageCmd)
}

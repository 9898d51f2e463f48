package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/nudge/internal/configs"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"

	"github.com/spf13/cobra"
)

// KeysCmd is the top-level keys command.
var KeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage your encryption keys",
	Long: `Loads, reloads and inspects the keys that encrypt your tasks.

Your master key is created the first time keys are initialised and is never
replaced. Keys shared with each peer are created on first use. A copy of
every key is kept in the local key cache, sealed with this device's key, so
notification previews can be decrypted without nudge running.`,
}

func init() {
	addCommonFlags(KeysCmd)

	KeysCmd.AddCommand(keysInitCmd)
	KeysCmd.AddCommand(keysReloadCmd)
	KeysCmd.AddCommand(keysStatusCmd)
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Load or create your master key and shared keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys init command")
		return withSession("Loading keys...", func(ctx context.Context, sess *session.Session) (string, error) {
			return ui.Done("Keys ready\n" + keyStatusText(sess)), nil
		})
	},
}

var keysReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Discard keys held in memory and load them again",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys reload command")
		return withSession("Reloading keys...", func(ctx context.Context, sess *session.Session) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := sess.ReloadKeys(ctx); err != nil {
				return "", err
			}
			return ui.Done("Keys reloaded\n" + keyStatusText(sess)), nil
		})
	},
}

var keysStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show key status and linked peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys status command")
		return withSession("Loading keys...", func(ctx context.Context, sess *session.Session) (string, error) {
			return keyStatusText(sess), nil
		})
	},
}

func keyStatusText(sess *session.Session) string {
	st := sess.KeyStatus()
	var b strings.Builder
	ready := ui.Warning.Sprint("loading")
	if st.Ready {
		ready = ui.Success.Sprint("ready")
	}
	fmt.Fprintf(&b, "  %-14s %s\n", "User ID:", ui.Highlight.Sprint(st.UserID))
	fmt.Fprintf(&b, "  %-14s %s\n", "Master key:", ready)
	if len(st.SharedWith) == 0 {
		fmt.Fprintf(&b, "  %-14s %s\n", "Shared keys:", ui.Muted.Sprint("none"))
	} else {
		fmt.Fprintf(&b, "  %-14s %s\n", "Shared keys:", strings.Join(st.SharedWith, ", "))
	}
	peers := sess.Peers()
	if len(peers) == 0 {
		fmt.Fprintf(&b, "  %-14s %s\n", "Peers:", ui.Muted.Sprint("none"))
	} else {
		fmt.Fprintf(&b, "  %-14s %s\n", "Peers:", strings.Join(peers, ", "))
	}
	fmt.Fprintf(&b, "  %-14s %s", "Key cache:", ui.Path.Sprint(configs.UserNudgeSettings.CachePath))
	return b.String()
}

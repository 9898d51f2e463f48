package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/nudge/internal/bridge"
	"github.com/PolarWolf314/nudge/internal/configs"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	"github.com/PolarWolf314/nudge/internal/records"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/spf13/cobra"
)

var previewPayload string

// PreviewCmd decrypts a push notification payload with the local key cache.
var PreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Decrypt a push notification preview",
	Long: `Renders the title and body of a push notification payload, decrypting the
task and comment excerpts with keys from the local key cache.

No connection to the store is made and no keys are created. An excerpt that
cannot be decrypted is shown as a placeholder.

The payload is read from --payload, or from stdin when the flag is not set:

  echo '{"type":"comment","fromUserId":"..."}' | nudge preview`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting preview command")

		data := []byte(previewPayload)
		if previewPayload == "" {
			var err error
			if data, err = utils.ReadStdin(); err != nil {
				fmt.Println(failure(err))
				return nil
			}
		}

		out, err := renderPreview(context.Background(), data)
		if err != nil {
			Logger.Errorf("Preview failed: %v", err)
			fmt.Println(failure(err))
			return nil
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	addCommonFlags(PreviewCmd)
	PreviewCmd.Flags().StringVar(&previewPayload, "payload", "", "push payload as JSON (default: read stdin)")
}

func resetPreviewState() {
	previewPayload = ""
}

// renderPreview decrypts the payload for the configured user and returns the
// title and body on separate lines.
func renderPreview(ctx context.Context, data []byte) (string, error) {
	p, err := records.ParsePushPayload(data)
	if err != nil {
		return "", err
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		return "", err
	}
	if cfg.User.ID == "" {
		return "", kerrors.ErrNotSignedIn
	}

	cache, err := session.OpenKeyCache(cfg, configs.UserNudgeSettings)
	if err != nil {
		return "", err
	}
	defer cache.Close()

	b := bridge.New(bridge.Options{
		UserID:      cfg.User.ID,
		Cache:       cache,
		RelockAfter: cfg.Bridge.RelockAfter.Duration,
		Logger:      Logger.With("bridge"),
	})
	defer b.Lock()

	title, body := b.Render(ctx, p)
	Logger.Debugf("Rendered %s notification from %s", p.Type, p.FromUserID)
	return ui.Highlight.Sprint(title) + "\n" + body, nil
}

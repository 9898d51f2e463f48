package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/PolarWolf314/nudge/internal/configs"
	"github.com/PolarWolf314/nudge/internal/coordinator"
	kerrors "github.com/PolarWolf314/nudge/internal/errors"
	logger "github.com/PolarWolf314/nudge/internal/logging"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	debug   bool
	timeout time.Duration
	Logger  logger.Logger
)

// addCommonFlags registers the logging and timeout flags on a command group
// and builds the logger before any of its commands run.
func addCommonFlags(c *cobra.Command) {
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	c.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	c.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for keys and the first sync")
	c.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Logger = logger.Logger{
			Verbose: verbose,
			Debug:   debug,
		}
		Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)
	}
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	timeout = 30 * time.Second
	Logger = logger.Logger{}
	resetTasksState()
	resetConfigState()
	resetMigrateState()
	resetPreviewState()
	resetLogState()
}

// startSpinner creates and starts a spinner with the given message when stdout
// is a terminal and neither verbose nor debug output is on. The returned
// cleanup prints the spinner's FinalMSG, which needs no trailing newline.
func startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	active := !verbose && !debug && utils.IsStdoutTerminal()
	if active {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("%s", message)
	}

	cleanup := func() {
		if active {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			s.FinalMSG = ""
		}
		if active {
			s.Stop()
		}
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}
	return s, cleanup
}

// openSession loads the configuration and opens a session for the
// configured user, waiting for the keys to load.
func openSession(ctx context.Context) (*session.Session, *configs.Config, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.User.ID == "" {
		return nil, nil, kerrors.ErrNotSignedIn
	}
	Logger.Debugf("Opening %s store for user %s", cfg.Store.Driver, cfg.User.ID)

	sess, err := session.OpenFromConfig(ctx, cfg, configs.UserNudgeSettings, Logger)
	if err != nil {
		return nil, nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sess.WaitReady(wctx); err != nil {
		sess.Close(context.Background())
		return nil, nil, err
	}
	Logger.Infof("Keys loaded for %s", cfg.User.ID)
	return sess, cfg, nil
}

// firstView waits for the first snapshot taken after the user's own
// subscription delivered.
func firstView(ctx context.Context, sess *session.Session) (coordinator.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case snap, ok := <-sess.Tasks():
			if !ok {
				return coordinator.Snapshot{}, kerrors.ErrSessionClosed
			}
			if snap.State == coordinator.Active || snap.ShowingCached {
				return snap, nil
			}
		case <-ctx.Done():
			// A quiet store publishes nothing; fall back to the current view.
			return sess.Snapshot(context.Background())
		}
	}
}

// failure formats an error for the spinner's final message.
func failure(err error) string {
	if kerrors.Is(err, kerrors.ErrNotSignedIn) {
		return notConfigured()
	}
	return ui.Failed(kerrors.UserMessage(err))
}

// notConfigured is shown when no user id is set.
func notConfigured() string {
	return ui.Failed("nudge has not been configured") + "\n" +
		ui.Next("Run " + ui.Code.Sprint("nudge config init") + " first")
}

func closeSession(sess *session.Session) {
	if err := sess.Close(context.Background()); err != nil {
		Logger.Warnf("Failed to close session: %v", err)
	}
}

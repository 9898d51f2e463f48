package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/PolarWolf314/nudge/internal/coordinator"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/spf13/cobra"
)

var (
	tasksAddVisibility visibilityValue
	tasksEditText      string
	tasksEditNotes     string
	tasksEditClear     bool
	tasksListDeleted   bool
	tasksListComments  bool

	// TasksCmd is the top-level tasks command.
	TasksCmd = &cobra.Command{
		Use:   "tasks",
		Short: "Create, share and follow tasks",
		Long: `Manages your tasks and shows the tasks your peers share with you.

Task text, notes and comments are encrypted on this device before they are
written. Peers can read a task only when its visibility allows them.

Examples:
  # Add a task every peer can see
  nudge tasks add "Buy milk"

  # Add a task only bob and carol can see
  nudge tasks add "Plan the party" --visibility only:bob,carol

  # Show your tasks and your peers' shared tasks
  nudge tasks list

  # Follow changes live
  nudge tasks watch`,
	}
)

func init() {
	addCommonFlags(TasksCmd)

	tasksAddCmd.Flags().Var(&tasksAddVisibility, "visibility", "who can read the task: everyone, private, only:<ids> or except:<ids>")
	tasksEditCmd.Flags().StringVar(&tasksEditText, "text", "", "new task text")
	tasksEditCmd.Flags().StringVar(&tasksEditNotes, "notes", "", "new notes")
	tasksEditCmd.Flags().BoolVar(&tasksEditClear, "clear-notes", false, "remove the notes")
	tasksListCmd.Flags().BoolVar(&tasksListDeleted, "deleted", false, "list your deleted tasks instead")
	tasksListCmd.Flags().BoolVar(&tasksListComments, "comments", false, "show comments under each task")

	TasksCmd.AddCommand(tasksAddCmd)
	TasksCmd.AddCommand(tasksEditCmd)
	TasksCmd.AddCommand(tasksListCmd)
	TasksCmd.AddCommand(tasksWatchCmd)
	TasksCmd.AddCommand(tasksVisibilityCmd)
	TasksCmd.AddCommand(tasksPrivateCmd)
	TasksCmd.AddCommand(tasksCommentCmd)
	TasksCmd.AddCommand(tasksCompleteCmd)
	TasksCmd.AddCommand(tasksDeleteCmd)
	TasksCmd.AddCommand(tasksRestoreCmd)
}

func resetTasksState() {
	tasksAddVisibility.reset()
	tasksEditText = ""
	tasksEditNotes = ""
	tasksEditClear = false
	tasksListDeleted = false
	tasksListComments = false
}

// withSession runs fn with an open session, reporting failures in the
// spinner's final message.
func withSession(message string, fn func(ctx context.Context, sess *session.Session) (string, error)) error {
	spinner, cleanup := startSpinner(message)
	defer cleanup()

	ctx := context.Background()
	sess, _, err := openSession(ctx)
	if err != nil {
		spinner.FinalMSG = failure(err)
		return nil
	}
	defer closeSession(sess)

	msg, err := fn(ctx, sess)
	if err != nil {
		Logger.Errorf("%s failed: %v", message, err)
		spinner.FinalMSG = failure(err)
		return nil
	}
	spinner.FinalMSG = msg
	return nil
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add an encrypted task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks add command")
		text := strings.Join(args, " ")
		mode, peers := tasksAddVisibility.get()

		return withSession("Adding task...", func(ctx context.Context, sess *session.Session) (string, error) {
			id, err := sess.AddTask(ctx, text, mode, peers)
			if err != nil {
				return "", err
			}
			return ui.Done("Added task " + ui.Highlight.Sprint(id) + " " + ui.Muted.Sprint(string(mode))), nil
		})
	},
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Change the text or notes of one of your tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks edit command")
		if tasksEditText == "" && tasksEditNotes == "" && !tasksEditClear {
			fmt.Println(ui.Failed("Nothing to change"))
			fmt.Println(ui.Next("Pass " + ui.Flag.Sprint("--text") + ", " + ui.Flag.Sprint("--notes") + " or " + ui.Flag.Sprint("--clear-notes")))
			return nil
		}

		return withSession("Updating task...", func(ctx context.Context, sess *session.Session) (string, error) {
			if tasksEditText != "" {
				if err := sess.UpdateTaskText(ctx, args[0], tasksEditText); err != nil {
					return "", err
				}
			}
			if tasksEditNotes != "" || tasksEditClear {
				if err := sess.UpdateNotes(ctx, args[0], tasksEditNotes); err != nil {
					return "", err
				}
			}
			return ui.Done("Updated task " + ui.Highlight.Sprint(args[0])), nil
		})
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your tasks and the tasks shared with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks list command")
		return withSession("Syncing tasks...", func(ctx context.Context, sess *session.Session) (string, error) {
			if tasksListDeleted {
				deleted, err := sess.DeletedTasks(ctx)
				if err != nil {
					return "", err
				}
				return renderTasks(coordinator.Snapshot{Tasks: deleted, Ready: true}, sess.UserID(), "No deleted tasks"), nil
			}
			snap, err := firstView(ctx, sess)
			if err != nil {
				return "", err
			}
			return renderTasks(snap, sess.UserID(), "No tasks yet"), nil
		})
	},
}

var tasksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow your tasks and your peers' tasks live",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks watch command")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sess, _, err := openSession(ctx)
		if err != nil {
			fmt.Println(failure(err))
			return nil
		}
		defer closeSession(sess)

		redraw := utils.IsStdoutTerminal() && !verbose && !debug
		for {
			select {
			case snap, ok := <-sess.Tasks():
				if !ok {
					return nil
				}
				if redraw {
					if err := utils.ClearScreen(); err != nil {
						Logger.Warnf("Failed to clear screen: %v", err)
					}
				}
				fmt.Println(renderTasks(snap, sess.UserID(), "No tasks yet"))
				if !redraw {
					fmt.Println()
				}
			case <-ctx.Done():
				return nil
			}
		}
	},
}

var tasksVisibilityCmd = &cobra.Command{
	Use:   "visibility <task-id> <everyone|private|only:ids|except:ids>",
	Short: "Change who can read one of your tasks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks visibility command")
		var v visibilityValue
		if err := v.Set(args[1]); err != nil {
			fmt.Println(ui.Failed(err.Error()))
			return nil
		}
		mode, peers := v.get()

		return withSession("Re-encrypting task...", func(ctx context.Context, sess *session.Session) (string, error) {
			if err := sess.SetVisibility(ctx, args[0], mode, peers); err != nil {
				return "", err
			}
			return ui.Done("Task " + ui.Highlight.Sprint(args[0]) + " is now visible to " + ui.Muted.Sprint(v.String())), nil
		})
	},
}

var tasksPrivateCmd = &cobra.Command{
	Use:   "private <task-id>",
	Short: "Toggle one of your tasks between private and shared with everyone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks private command")
		return withSession("Re-encrypting task...", func(ctx context.Context, sess *session.Session) (string, error) {
			private, err := sess.TogglePrivacy(ctx, args[0])
			if err != nil {
				return "", err
			}
			if private {
				return ui.Done("Task " + ui.Highlight.Sprint(args[0]) + " is now private"), nil
			}
			return ui.Done("Task " + ui.Highlight.Sprint(args[0]) + " is now shared with your peers"), nil
		})
	},
}

var tasksCommentCmd = &cobra.Command{
	Use:   "comment <task-id> <text>",
	Short: "Comment on your task or a task shared with you",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks comment command")
		text := strings.Join(args[1:], " ")
		return withSession("Adding comment...", func(ctx context.Context, sess *session.Session) (string, error) {
			if _, err := sess.AddComment(ctx, args[0], text); err != nil {
				return "", err
			}
			return ui.Done("Comment added to " + ui.Highlight.Sprint(args[0])), nil
		})
	},
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark one of your tasks complete, or open again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks complete command")
		return withSession("Updating task...", func(ctx context.Context, sess *session.Session) (string, error) {
			done, err := sess.ToggleComplete(ctx, args[0])
			if err != nil {
				return "", err
			}
			if done {
				return ui.Done("Completed " + ui.Highlight.Sprint(args[0])), nil
			}
			return ui.Done("Reopened " + ui.Highlight.Sprint(args[0])), nil
		})
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Move one of your tasks to the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks delete command")
		return withSession("Deleting task...", func(ctx context.Context, sess *session.Session) (string, error) {
			if err := sess.DeleteTask(ctx, args[0]); err != nil {
				return "", err
			}
			return ui.Done("Deleted "+ui.Highlight.Sprint(args[0])) + "\n" +
				ui.Next("Undo with " + ui.Code.Sprint("nudge tasks restore "+args[0])), nil
		})
	},
}

var tasksRestoreCmd = &cobra.Command{
	Use:   "restore <task-id>",
	Short: "Restore a deleted task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting tasks restore command")
		return withSession("Restoring task...", func(ctx context.Context, sess *session.Session) (string, error) {
			if err := sess.RestoreTask(ctx, args[0]); err != nil {
				return "", err
			}
			return ui.Done("Restored " + ui.Highlight.Sprint(args[0])), nil
		})
	},
}

// renderTasks formats a view for the list and watch commands.
func renderTasks(snap coordinator.Snapshot, viewerID, empty string) string {
	var b strings.Builder
	if snap.ShowingCached {
		b.WriteString(ui.Caution("Sync paused by the store's rate limit; showing the last synced tasks\n"))
	}
	if !snap.Ready {
		b.WriteString(ui.Caution("Encryption keys are still loading\n"))
	}
	if len(snap.Tasks) == 0 {
		b.WriteString(ui.Muted.Sprint(empty))
		return b.String()
	}
	for i, t := range snap.Tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ui.TaskLine(t, viewerID))
		if t.Notes != "" {
			b.WriteString("\n    " + ui.TaskText(t.Notes))
		}
		if tasksListComments {
			for _, c := range t.Comments {
				b.WriteString("\n" + ui.CommentLine(c))
			}
		}
	}
	return b.String()
}

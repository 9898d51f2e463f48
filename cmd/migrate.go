package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/nudge/internal/migration"
	"github.com/PolarWolf314/nudge/internal/session"
	"github.com/PolarWolf314/nudge/internal/ui"

	"github.com/spf13/cobra"
)

var (
	migrateDryRun bool
	migrateForce  bool
	migrateStatus bool
)

// MigrateCmd encrypts tasks written before encryption existed.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt your tasks written before encryption",
	Long: `Encrypts the text, notes and comments of your tasks that are still stored
in plaintext. The pass runs once; a status record stops later runs unless
--force is given. Notifications are left as they are.

Use --dry-run to count what would be encrypted without writing anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting migrate command")
		Logger.Debugf("Flags: dry-run=%t, force=%t, status=%t", migrateDryRun, migrateForce, migrateStatus)

		if migrateStatus {
			return withSession("Reading migration status...", func(ctx context.Context, sess *session.Session) (string, error) {
				st, ok, err := sess.MigrationStatus(ctx)
				if err != nil {
					return "", err
				}
				if !ok || !st.Completed {
					return ui.Caution("Migration has not completed") + "\n" +
						ui.Next("Run " + ui.Code.Sprint("nudge migrate")), nil
				}
				return ui.Done(fmt.Sprintf("Migrated %d tasks on %s", st.TasksMigrated,
					st.MigratedAt.Local().Format("Jan 2, 2006 15:04"))), nil
			})
		}

		return withSession("Encrypting legacy tasks...", func(ctx context.Context, sess *session.Session) (string, error) {
			res, err := sess.Migrate(ctx, migration.Options{DryRun: migrateDryRun, Force: migrateForce})
			if err != nil {
				return "", err
			}
			return migrationSummary(res), nil
		})
	},
}

func init() {
	addCommonFlags(MigrateCmd)
	MigrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "count what would be encrypted without writing")
	MigrateCmd.Flags().BoolVar(&migrateForce, "force", false, "run even if the migration already completed")
	MigrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "show the migration status and exit")
}

func resetMigrateState() {
	migrateDryRun = false
	migrateForce = false
	migrateStatus = false
}

func migrationSummary(res *migration.Result) string {
	if res.AlreadyCompleted {
		return ui.Done("Migration already completed") + "\n" +
			ui.Next("Use " + ui.Flag.Sprint("--force") + " to run it again")
	}

	var b strings.Builder
	if res.DryRun {
		b.WriteString(ui.Warning.Sprint("[dry-run]") + " ")
	}
	b.WriteString(ui.Done(fmt.Sprintf("Scanned %d tasks: %d tasks and %d comments encrypted in %d batches",
		res.TasksScanned, res.TasksMigrated, res.CommentsMigrated, res.Batches)))
	if len(res.Skipped) > 0 {
		b.WriteString("\n" + ui.Caution(fmt.Sprintf("Skipped %d tasks: %s", len(res.Skipped), strings.Join(res.Skipped, ", "))))
		b.WriteString("\n" + ui.Next("Run " + ui.Code.Sprint("nudge migrate") + " again once keys are available"))
	}
	return b.String()
}

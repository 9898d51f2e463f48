package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PolarWolf314/nudge/internal/audit"
	"github.com/PolarWolf314/nudge/internal/configs"
	"github.com/PolarWolf314/nudge/internal/ui"
	"github.com/PolarWolf314/nudge/internal/utils"

	"github.com/spf13/cobra"
)

var (
	logLimit     int
	logReverse   bool
	logOperation string
	logJSON      bool
)

// LogCmd shows the local audit trail of key and migration events.
var LogCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log",
	Long: `Displays the audit log of key creation, key reloads, migrations and
friend content backfills recorded on this device.

Examples:
  nudge log                                  # View full log
  nudge log -n 10                            # Last 10 entries
  nudge log --reverse                        # Most recent first
  nudge log --operation shared_key_created   # Filter by operation
  nudge log --json                           # JSON output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting log command")

		trail := audit.At(configs.UserNudgeSettings.DataDir, "", "")
		entries, err := trail.ReadEntries()
		if err != nil {
			fmt.Println(ui.Failed("Failed to read audit log: " + err.Error()))
			return err
		}
		Logger.Debugf("Parsed %d entries from %s", len(entries), trail.Path)

		filtered := filterEntries(entries, utils.SplitIDs(logOperation), logLimit, logReverse)
		if len(filtered) == 0 {
			if len(entries) == 0 {
				fmt.Println("No audit log entries found.")
			} else {
				fmt.Println("No audit log entries found matching the filters.")
			}
			return nil
		}

		if logJSON {
			data, err := json.MarshalIndent(filtered, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal entries to JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		for _, e := range filtered {
			fmt.Println(formatEntry(e))
		}
		return nil
	},
}

func init() {
	addCommonFlags(LogCmd)
	LogCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	LogCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	LogCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation (comma-separated)")
	LogCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

func resetLogState() {
	logLimit = 0
	logReverse = false
	logOperation = ""
	logJSON = false
}

// filterEntries keeps entries whose operation is in ops (all when empty),
// then keeps the last limit of them.
func filterEntries(entries []audit.Entry, ops []string, limit int, reverse bool) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if len(ops) == 0 || slices.Contains(ops, e.Operation) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	if reverse {
		slices.Reverse(out)
	}
	return out
}

func formatEntry(e audit.Entry) string {
	when := e.Timestamp
	if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		when = ts.Local().Format("2006-01-02 15:04:05")
	}

	var details []string
	if e.Peer != "" {
		details = append(details, "peer="+e.Peer)
	}
	if e.TaskID != "" {
		details = append(details, "task="+e.TaskID)
	}
	if e.Count > 0 {
		details = append(details, fmt.Sprintf("count=%d", e.Count))
	}
	if e.DryRun {
		details = append(details, "dry-run")
	}
	line := fmt.Sprintf("%-19s  %-20s", when, e.Operation)
	if len(details) > 0 {
		line += "  " + ui.Muted.Sprint(strings.Join(details, " "))
	}
	return line
}

package main

import (
	"fmt"
	"os"

	"github.com/PolarWolf314/nudge/cmd"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "nudge - end-to-end encrypted tasks shared with your friends.",
	Long: `nudge keeps a task list whose text, notes and comments are encrypted
before they leave your machine. Tasks can be shared with linked peers, who
read them with keys shared only between the two of you.

Usage:
  nudge <command> [flags]

Available Commands:
  config     Create and inspect your configuration
  keys       Manage your encryption keys
  tasks      Add, edit, share and watch tasks
  encourage  Send a peer a note of encouragement
  migrate    Encrypt tasks written before encryption
  preview    Decrypt a push notification preview
  log        View the audit log

Run 'nudge help <command>' for more details on a specific command.
`,
	Run: func(c *cobra.Command, args []string) {
		figure.NewFigure("nudge", "", true).Print()
		fmt.Println()
		fmt.Println("Welcome to nudge! Run 'nudge --help' to see available commands.")
	},
}

func init() {
	rootCmd.AddCommand(cmd.ConfigCmd)
	rootCmd.AddCommand(cmd.KeysCmd)
	rootCmd.AddCommand(cmd.TasksCmd)
	rootCmd.AddCommand(cmd.EncourageCmd)
	rootCmd.AddCommand(cmd.MigrateCmd)
	rootCmd.AddCommand(cmd.PreviewCmd)
	rootCmd.AddCommand(cmd.NotificationsCmd)
	rootCmd.AddCommand(cmd.LogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

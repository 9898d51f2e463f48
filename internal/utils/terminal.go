package utils

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdin is a terminal, i.e. whether prompts can
// be answered.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTerminal reports whether stdout is a terminal. Spinners and screen
// redraws are only shown when it is.
func IsStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ClearScreen clears stdout and moves the cursor home before the watch view
// redraws. Callers check IsStdoutTerminal first.
func ClearScreen() error {
	if _, err := fmt.Fprint(os.Stdout, "\033[2J\033[H"); err != nil {
		return fmt.Errorf("failed to clear screen: %w", err)
	}
	return nil
}

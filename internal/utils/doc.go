// Package utils provides small helpers shared by the nudge commands.
//
// # String Utilities
//
//   - IsValidEmail: checks the shape of an email address
//   - SplitIDs: parses a comma separated list of user ids
//
// # System Utilities
//
//   - DefaultDisplayName: guesses a display name from the system account
//
// # I/O Utilities
//
//   - ReadStdin: reads piped data from standard input
//
// # Terminal Utilities
//
//   - IsTerminal, IsStdoutTerminal: terminal detection
//   - ClearScreen: redraws the screen for live views
package utils

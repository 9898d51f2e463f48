// Package logger provides leveled, colored logging for nudge.
//
// # Verbosity Levels
//
// Logging behavior is controlled by two flags:
//
//   - --verbose: Shows info messages
//   - --debug: Shows all messages including debug details and errors
//
// Warnings go to stderr regardless of flags. Library packages absorb
// most errors (a failed decrypt becomes a placeholder), so their logs are
// the only trace of what went wrong; run with --debug when diagnosing.
//
// # Log Methods
//
//	Logger.Infof()  // Shown with --verbose or --debug
//	Logger.Debugf() // Shown only with --debug
//	Logger.Warnf()  // Always shown
//	Logger.Errorf() // Shown with --debug
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}.With("keys")
//	log.Infof("master key loaded for %s", userID)
//
// Commands create a logger in PersistentPreRun and pass it by value into
// the session, which tags a copy per component.
package logger

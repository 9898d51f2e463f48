// Package ui formats the text nudge prints.
//
// Formatters mark what a piece of text is rather than how it looks:
//
//	ui.Code.Sprint("nudge tasks list")   // a command to run
//	ui.Highlight.Sprint(peerID)          // a user, peer or task id
//	ui.Muted.Sprint("private")           // secondary detail
//
// With NO_COLOR set, or when the terminal has no color, Code falls back to
// `backticks`, Highlight to 'quotes' and Muted to (parentheses). Tests set
// NO_COLOR to compare plain strings.
//
// # Status Lines
//
// Command results start with a symbol:
//
//	ui.Done("Added task " + ui.Highlight.Sprint(id))  // ✓ Added task 'ab12'
//	ui.Failed(kerrors.UserMessage(err))              // ✗ ...
//	ui.Caution("Encryption keys are still loading")   // ⚠ ...
//	ui.Next("Run " + ui.Code.Sprint("nudge config init"))
//
// # Task Lines
//
// TaskLine renders one decoded task for list and watch output. Own tasks
// show their visibility, peer tasks their owner. Text that could not be
// decrypted, or a task the viewer may not read, is muted so it stands apart
// from real task text.
package ui

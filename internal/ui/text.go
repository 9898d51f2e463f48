package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Formatter renders one kind of content. Without color it falls back to a
// plain-text decoration so the kind stays recognisable.
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f Formatter) Sprint(a ...any) string {
	text := fmt.Sprint(a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

func (f Formatter) Sprintf(format string, a ...any) string {
	return f.Sprint(fmt.Sprintf(format, a...))
}

// Status lines start with a colored symbol.

// Done reports a completed operation: "✓ msg".
func Done(msg string) string { return Success.Sprint("✓") + " " + msg }

// Failed reports an error: "✗ msg".
func Failed(msg string) string { return Error.Sprint("✗") + " " + msg }

// Caution reports a degraded result, such as a cached view: "⚠ msg".
func Caution(msg string) string { return Warning.Sprint("⚠") + " " + msg }

// Next suggests what to run next: "→ msg".
func Next(msg string) string { return Info.Sprint("→") + " " + msg }

// EnsureNewline ensures the string ends with a newline character.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

func noColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	return color.NoColor
}

// Without color, Code is `backticked`, Highlight is 'quoted' and Muted is
// (parenthesised); the rest are left bare.
var (
	Code      = Formatter{color.New(color.FgYellow), "`", "`"} // commands to run
	Path      = Formatter{color.New(color.FgYellow), "", ""}   // config, cache and audit files
	Flag      = Formatter{color.New(color.FgYellow), "", ""}
	Success   = Formatter{color.New(color.FgGreen), "", ""}
	Error     = Formatter{color.New(color.FgRed), "", ""}
	Warning   = Formatter{color.New(color.FgYellow), "", ""}
	Info      = Formatter{color.New(color.FgCyan), "", ""}
	Highlight = Formatter{color.New(color.FgCyan), "'", "'"} // user, peer and task ids
	Muted     = Formatter{color.New(color.FgHiBlack), "(", ")"} // visibility, placeholders, ids
)

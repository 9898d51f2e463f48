package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

type Logger struct {
	Verbose bool
	Debug   bool

	// Component is printed after the level prefix, e.g. "[info] coordinator: ...".
	Component string

	// Out and Err default to os.Stdout and os.Stderr.
	Out io.Writer
	Err io.Writer
}

// With returns a copy of the logger tagged with component.
func (l Logger) With(component string) Logger {
	l.Component = component
	return l
}

func (l Logger) Infof(msg string, args ...any) {
	if l.Verbose || l.Debug {
		l.write(l.stdout(), color.GreenString("[info] "), msg, args...)
	}
}

func (l Logger) Debugf(msg string, args ...any) {
	if l.Debug {
		l.write(l.stdout(), color.CyanString("[debug] "), msg, args...)
	}
}

func (l Logger) Warnf(msg string, args ...any) {
	l.write(l.stderr(), color.YellowString("[warn] "), msg, args...)
}

func (l Logger) Errorf(msg string, args ...any) {
	if l.Debug {
		l.write(l.stderr(), color.RedString("[error] "), msg, args...)
	}
}

// ErrorfAndReturn logs like Errorf and returns the formatted error.
func (l Logger) ErrorfAndReturn(msg string, args ...any) error {
	l.Errorf(msg, args...)
	return fmt.Errorf(msg, args...)
}

func (l Logger) write(w io.Writer, prefix, msg string, args ...any) {
	if l.Component != "" {
		prefix += l.Component + ": "
	}
	fmt.Fprintf(w, prefix+msg+"\n", args...)
}

func (l Logger) stdout() io.Writer {
	if l.Out != nil {
		return l.Out
	}
	return os.Stdout
}

func (l Logger) stderr() io.Writer {
	if l.Err != nil {
		return l.Err
	}
	return os.Stderr
}

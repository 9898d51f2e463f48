package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestLoggerLevels(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name      string
		logger    Logger
		wantInfo  bool
		wantDebug bool
		wantWarn  bool
	}{
		{"quiet", Logger{}, false, false, true},
		{"verbose", Logger{Verbose: true}, true, false, true},
		{"debug", Logger{Debug: true}, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := tt.logger
			l.Out = &out
			l.Err = &errOut

			l.Infof("info %d", 1)
			l.Debugf("debug %d", 2)
			l.Warnf("warn %d", 3)

			if got := strings.Contains(out.String(), "info 1"); got != tt.wantInfo {
				t.Errorf("info shown = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(out.String(), "debug 2"); got != tt.wantDebug {
				t.Errorf("debug shown = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(errOut.String(), "warn 3"); got != tt.wantWarn {
				t.Errorf("warn shown = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestWarnfWithoutFlagsAndComponent(t *testing.T) {
	color.NoColor = true

	var errOut bytes.Buffer
	l := Logger{Err: &errOut}.With("coordinator")
	l.Warnf("showing cached data")

	got := errOut.String()
	if !strings.Contains(got, "[warn] coordinator: showing cached data") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestErrorfAndReturn(t *testing.T) {
	err := Logger{}.ErrorfAndReturn("failed to load %s", "config")
	if err == nil || err.Error() != "failed to load config" {
		t.Fatalf("unexpected error %v", err)
	}
}

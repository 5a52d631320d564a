package telemetry

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity VerbosityLevel
	}{
		{"quiet", VerbosityQuiet},
		{"verbose", VerbosityVerbose},
		{"debug", VerbosityDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(tt.verbosity)
			if l == nil {
				t.Fatal("expected non-nil logger")
			}
			if l.verbosity != tt.verbosity {
				t.Errorf("verbosity: got %v, want %v", l.verbosity, tt.verbosity)
			}
			if l.timings == nil {
				t.Error("expected initialized timings map")
			}
		})
	}
}

func TestLoggerProgress(t *testing.T) {
	tests := []struct {
		name      string
		verbosity VerbosityLevel
		expectOut bool
	}{
		{"quiet hides progress", VerbosityQuiet, false},
		{"verbose shows progress", VerbosityVerbose, true},
		{"debug shows progress", VerbosityDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerWithWriter(tt.verbosity, &buf)
			l.Progress("test message %d", 42)

			hasOutput := buf.Len() > 0
			if hasOutput != tt.expectOut {
				t.Errorf("hasOutput: got %v, want %v", hasOutput, tt.expectOut)
			}
			if tt.expectOut && !strings.Contains(buf.String(), "test message 42") {
				t.Errorf("output missing message: %q", buf.String())
			}
		})
	}
}

func TestLoggerDebug_IncludesElapsedPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(VerbosityDebug, &buf)
	l.Debug("sink %d skipped", 3)

	out := buf.String()
	if !strings.HasPrefix(out, "[") {
		t.Errorf("expected elapsed-time prefix, got: %q", out)
	}
	if !strings.Contains(out, "sink 3 skipped") {
		t.Errorf("output missing message: %q", out)
	}
}

func TestLoggerDebug_SuppressedBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(VerbosityVerbose, &buf)
	l.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output at verbose level, got: %q", buf.String())
	}
}

func TestLoggerWarningAndError_AlwaysShown(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(VerbosityQuiet, &buf)
	l.Warning("schema drift pending review")
	l.Error("extraction aborted")

	out := buf.String()
	if !strings.Contains(out, "Warning: schema drift pending review") {
		t.Errorf("missing warning line: %q", out)
	}
	if !strings.Contains(out, "Error: extraction aborted") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestLoggerTimings(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(VerbosityDebug, &buf)

	stop := l.StartTiming("extract")
	stop()

	timings := l.GetAllTimings()
	if _, ok := timings["extract"]; !ok {
		t.Errorf("expected a recorded timing for 'extract', got: %v", timings)
	}
}

func TestIsVerboseAndIsDebug(t *testing.T) {
	quiet := NewLogger(VerbosityQuiet)
	verbose := NewLogger(VerbosityVerbose)
	debug := NewLogger(VerbosityDebug)

	if quiet.IsVerbose() || quiet.IsDebug() {
		t.Error("quiet logger should not be verbose or debug")
	}
	if !verbose.IsVerbose() || verbose.IsDebug() {
		t.Error("verbose logger should be verbose but not debug")
	}
	if !debug.IsVerbose() || !debug.IsDebug() {
		t.Error("debug logger should be both verbose and debug")
	}
}

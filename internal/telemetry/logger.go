// Package telemetry provides the engine's structured logging and
// stage-level counters. Every stage entry point receives a *Logger
// explicitly; there is no package-level global logger or debug flag.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// VerbosityLevel controls which log tiers are emitted.
type VerbosityLevel int

const (
	VerbosityQuiet VerbosityLevel = iota
	VerbosityVerbose
	VerbosityDebug
)

// Logger provides structured logging with verbosity control and
// progress-bar reporting for long-running stages (extraction, graph
// build, taint sweep).
type Logger struct {
	verbosity    VerbosityLevel
	writer       io.Writer
	startTime    time.Time
	timings      map[string]time.Duration
	isTTY        bool
	progressBar  *progressbar.ProgressBar
	showProgress bool
}

// NewLogger creates a logger with the specified verbosity. Output goes to
// stderr to keep stdout clean for results.
func NewLogger(verbosity VerbosityLevel) *Logger {
	writer := os.Stderr
	isTTY := IsTTY(writer)
	return &Logger{
		verbosity:    verbosity,
		writer:       writer,
		startTime:    time.Now(),
		timings:      make(map[string]time.Duration),
		isTTY:        isTTY,
		showProgress: isTTY,
	}
}

// NewLoggerWithWriter creates a logger with a custom output writer.
// Primarily used by tests.
func NewLoggerWithWriter(verbosity VerbosityLevel, w io.Writer) *Logger {
	isTTY := IsTTY(w)
	return &Logger{
		verbosity:    verbosity,
		writer:       w,
		startTime:    time.Now(),
		timings:      make(map[string]time.Duration),
		isTTY:        isTTY,
		showProgress: isTTY,
	}
}

// Progress logs high-level stage progress (shown in verbose and debug modes).
func (l *Logger) Progress(format string, args ...interface{}) {
	if l.verbosity >= VerbosityVerbose {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Statistic logs stage-summary counts (shown in verbose and debug modes).
func (l *Logger) Statistic(format string, args ...interface{}) {
	if l.verbosity >= VerbosityVerbose {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Debug logs debug diagnostics (shown only in debug mode), prefixed with
// elapsed time since logger creation.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.verbosity >= VerbosityDebug {
		elapsed := time.Since(l.startTime)
		prefix := formatDuration(elapsed)
		fmt.Fprintf(l.writer, "[%s] %s\n", prefix, fmt.Sprintf(format, args...))
	}
}

// Warning logs a warning; always shown.
func (l *Logger) Warning(format string, args ...interface{}) {
	fmt.Fprintf(l.writer, "Warning: %s\n", fmt.Sprintf(format, args...))
}

// Error logs an error; always shown.
func (l *Logger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.writer, "Error: %s\n", fmt.Sprintf(format, args...))
}

// StartTiming begins timing a named operation; the returned func records
// the elapsed duration when called.
func (l *Logger) StartTiming(name string) func() {
	start := time.Now()
	return func() {
		l.timings[name] = time.Since(start)
	}
}

// GetTiming returns the duration recorded for a named operation.
func (l *Logger) GetTiming(name string) time.Duration {
	return l.timings[name]
}

// GetAllTimings returns a copy of all recorded timings.
func (l *Logger) GetAllTimings() map[string]time.Duration {
	result := make(map[string]time.Duration, len(l.timings))
	for k, v := range l.timings {
		result[k] = v
	}
	return result
}

// PrintTimingSummary prints all recorded timings (verbose mode only).
func (l *Logger) PrintTimingSummary() {
	if l.verbosity < VerbosityVerbose {
		return
	}
	fmt.Fprintln(l.writer, "\nTiming Summary:")
	for name, duration := range l.timings {
		fmt.Fprintf(l.writer, "  %s: %s\n", name, duration.Round(time.Millisecond))
	}
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}

// Verbosity returns the current verbosity level.
func (l *Logger) Verbosity() VerbosityLevel { return l.verbosity }

// IsVerbose returns true if verbose or debug mode is enabled.
func (l *Logger) IsVerbose() bool { return l.verbosity >= VerbosityVerbose }

// IsDebug returns true if debug mode is enabled.
func (l *Logger) IsDebug() bool { return l.verbosity >= VerbosityDebug }

// IsTTY returns true if the logger's output is connected to a terminal.
func (l *Logger) IsTTY() bool { return l.isTTY }

// GetWriter returns the logger's output writer.
func (l *Logger) GetWriter() io.Writer { return l.writer }

// StartProgress creates and displays a progress bar for a stage. For
// indeterminate operations (total < 0) it shows a spinner; otherwise a
// percentage bar. In non-TTY mode it falls back to a single progress line.
func (l *Logger) StartProgress(description string, total int) error {
	if !l.showProgress || !l.isTTY {
		l.Progress("%s...", description)
		return nil
	}

	if l.progressBar != nil {
		_ = l.progressBar.Finish()
	}

	if total < 0 {
		l.progressBar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(l.writer),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionOnCompletion(func() { fmt.Fprintf(l.writer, "\n") }),
		)
	} else {
		l.progressBar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(l.writer),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintf(l.writer, "\n") }),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	return nil
}

// UpdateProgress advances the active progress bar by delta.
func (l *Logger) UpdateProgress(delta int) error {
	if !l.showProgress || !l.isTTY || l.progressBar == nil {
		return nil
	}
	return l.progressBar.Add(delta)
}

// FinishProgress completes and clears the active progress bar.
func (l *Logger) FinishProgress() error {
	if !l.showProgress || !l.isTTY || l.progressBar == nil {
		return nil
	}
	err := l.progressBar.Finish()
	l.progressBar = nil
	return err
}

// SetProgressDescription updates the description of the active progress bar.
func (l *Logger) SetProgressDescription(description string) {
	if !l.showProgress || !l.isTTY || l.progressBar == nil {
		return
	}
	l.progressBar.Describe(description)
}

// IsProgressEnabled returns true if progress bars are enabled for this logger.
func (l *Logger) IsProgressEnabled() bool {
	return l.showProgress && l.isTTY
}

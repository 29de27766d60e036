// Package applog is the process-wide structured logger, configured the
// same way the retrieval pack's reference logger configures log/slog: a
// text handler over stdout plus an optional log file, with shortened
// timestamps.
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// Log is the process-wide logger. Until Init runs it is a plain stdout
// text handler installed by this package's init; Init replaces it with the
// configured handler.
var Log *slog.Logger

// Init wires the global logger. level is one of "debug", "info", "warn",
// "error" (default "info" for anything else). logFile, if non-empty, is
// opened for append and written to in addition to stdout.
func Init(level string, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("open log file %s: %w: %w", logFile, err, apperrors.Fatal)
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

func init() {
	// Usable before Init runs (e.g. in package-level tests of other
	// packages that import applog transitively but never call Init).
	Log = slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// NewWorkerTag returns a short correlation id for one long-running
// goroutine (a rescan thread, an accepted connection, a NAT-PMP renewer),
// to be attached as a log field so its messages can be told apart from a
// concurrently-running peer's.
func NewWorkerTag() string {
	id := uuid.New().String()
	return id[:8]
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { Log.Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { Log.Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { Log.Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { Log.Error(msg, args...) }

// ReportAppError logs err at a severity appropriate to its apperrors.Kind,
// attaching the caller's source file/line for protocol and
// catalog-invariant kinds as spec.md §7 requires ("logged with source
// file/line"). Transient kinds are logged at debug level since they never
// surface to the user.
func ReportAppError(msg string, err error) {
	kind := apperrors.Classify(err)

	if !kind.Surfaces() {
		Log.Debug(msg, "err", err, "kind", kind.String())
		return
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "unknown", 0
	}
	Log.Error(msg, "err", err, "kind", kind.String(), "file", file, "line", line)
}

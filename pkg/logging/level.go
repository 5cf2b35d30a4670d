package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// VerbosityLevel maps a -v count to a level: 0 warn, 1 info, 2+ debug.
func VerbosityLevel(verbosity int) Level {
	switch {
	case verbosity >= 2:
		return LevelDebug
	case verbosity == 1:
		return LevelInfo
	}
	return LevelWarn
}

// NewConsoleHandler returns a tint handler writing to w. Colors are used only
// when w is a terminal.
func NewConsoleHandler(w io.Writer, level Level) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level.slogLevel(),
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})
}

// SetupConsole installs a stderr console handler as the slog default.
func SetupConsole(verbosity int) {
	slog.SetDefault(slog.New(NewConsoleHandler(os.Stderr, VerbosityLevel(verbosity))))
}

// SlogAdapter routes Logger calls to a slog.Logger.
type SlogAdapter struct {
	Logger *slog.Logger
}

func (a SlogAdapter) Debugf(format string, v ...interface{}) {
	a.Logger.Debug(fmt.Sprintf(format, v...))
}

func (a SlogAdapter) Infof(format string, v ...interface{}) {
	a.Logger.Info(fmt.Sprintf(format, v...))
}

func (a SlogAdapter) Warnf(format string, v ...interface{}) {
	a.Logger.Warn(fmt.Sprintf(format, v...))
}

func (a SlogAdapter) Errorf(format string, v ...interface{}) {
	a.Logger.Error(fmt.Sprintf(format, v...))
}

// Tee fans each entry out to every logger.
type Tee []Logger

func (t Tee) Debugf(format string, v ...interface{}) {
	for _, l := range t {
		l.Debugf(format, v...)
	}
}

func (t Tee) Infof(format string, v ...interface{}) {
	for _, l := range t {
		l.Infof(format, v...)
	}
}

func (t Tee) Warnf(format string, v ...interface{}) {
	for _, l := range t {
		l.Warnf(format, v...)
	}
}

func (t Tee) Errorf(format string, v ...interface{}) {
	for _, l := range t {
		l.Errorf(format, v...)
	}
}

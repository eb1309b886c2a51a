package logger

import (
	"flag"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel is the closed set of levels the CORE may log at (§6).
type LogLevel string

const (
	DebugLevel    LogLevel = "debug"
	InfoLevel     LogLevel = "info"
	WarnLevel     LogLevel = "warn"
	ErrorLevel    LogLevel = "error"
	DisabledLevel LogLevel = "disabled"
)

// disabledCharmLevel sits above charmlog.FatalLevel so nothing is ever emitted.
const disabledCharmLevel = charmlog.Level(1000)

// ToCharmlogLevel maps a LogLevel onto the underlying charmbracelet/log
// level. Unrecognized values default to InfoLevel rather than erroring,
// since a bad LOG_LEVEL env value should degrade gracefully, not crash
// logging itself.
func (l LogLevel) ToCharmlogLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case InfoLevel:
		return charmlog.InfoLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	case DisabledLevel:
		return disabledCharmLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config controls how NewLogger builds a Logger.
type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

// DefaultConfig is the production default: info level, text format to
// stdout, no caller info.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// TestConfig silences logging entirely, used as the fallback under `go test`.
func TestConfig() *Config {
	return &Config{
		Level:      DisabledLevel,
		Output:     io.Discard,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// IsTestEnvironment reports whether the process is running under `go test`.
func IsTestEnvironment() bool {
	return flag.Lookup("test.v") != nil
}

package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Global logging configuration. Nothing is logged until it is set.
var GlobalLogging *LoggingConfig

var base atomic.Pointer[zerolog.Logger]

func init() {
	l := newZerolog(os.Stdout, FormatConsole, zerolog.InfoLevel)
	base.Store(&l)
}

// Configure builds the zerolog backend from config and installs it globally
func Configure(config *LoggingConfig) error {
	level := ParseLevel(config.Level)

	var output io.Writer = os.Stdout
	var fileErr error
	if config.File != "" {
		// Use 0600 permissions (owner read/write only)
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fileErr = err
		} else {
			output = f
		}
	}

	l := newZerolog(output, config.Format, level)
	base.Store(&l)
	GlobalLogging = config

	if fileErr != nil {
		LogWarn("Failed to open log file %s, using stdout: %v", config.File, fileErr)
	}
	return fileErr
}

func newZerolog(out io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if strings.ToLower(format) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: out != os.Stdout}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a config level string onto zerolog, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn, "warning":
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog returns the active backend for packages that want structured fields
func Zerolog() *zerolog.Logger {
	return base.Load()
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	base.Load().Log().Msgf("🔧 "+format, args...)
}

// Helper functions for global logging
func LogError(format string, args ...interface{}) {
	if GlobalLogging != nil {
		base.Load().Error().Msgf("❌ "+format, args...)
	}
}

func LogWarn(format string, args ...interface{}) {
	if GlobalLogging != nil {
		base.Load().Warn().Msgf("⚠️ "+format, args...)
	}
}

func LogInfo(format string, args ...interface{}) {
	if GlobalLogging != nil {
		base.Load().Info().Msgf("ℹ️ "+format, args...)
	}
}

func LogDebug(format string, args ...interface{}) {
	if GlobalLogging != nil {
		base.Load().Debug().Msgf("🔧 "+format, args...)
	}
}

func LogTrace(format string, args ...interface{}) {
	if GlobalLogging != nil {
		base.Load().Trace().Msgf("🔍 "+format, args...)
	}
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	return GlobalLogging != nil && base.Load().GetLevel() <= zerolog.DebugLevel
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	return GlobalLogging != nil && base.Load().GetLevel() <= zerolog.TraceLevel
}

package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidewell/agentdeck/config"
)

var (
	logger     zerolog.Logger
	loggerLock sync.RWMutex

	// Modules forced to debug level via the DEBUG env var
	// (comma-separated module names, or "*" for everything).
	debugModules map[string]bool
	debugAll     bool
)

func init() {
	cfg := config.Get()

	// Pretty console output for development, JSON for production
	var output io.Writer
	if cfg.IsDevelopment() {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	} else {
		output = os.Stdout
	}

	logger = zerolog.New(output).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	debugModules = make(map[string]bool)
	for _, m := range strings.Split(cfg.DebugModules, ",") {
		m = strings.TrimSpace(strings.ToLower(m))
		if m == "" {
			continue
		}
		if m == "*" {
			debugAll = true
			continue
		}
		debugModules[m] = true
	}
}

// SetLevel sets the global log level at runtime
func SetLevel(levelStr string) {
	level := parseLogLevel(levelStr)
	loggerLock.Lock()
	logger = logger.Level(level)
	loggerLock.Unlock()
}

// parseLogLevel converts a string log level to zerolog.Level
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns a logger tagged with a module name. Modules listed in
// the DEBUG env var log at debug level regardless of the global level.
func GetLogger(module string) zerolog.Logger {
	loggerLock.RLock()
	l := logger
	loggerLock.RUnlock()

	l = l.With().Str("module", module).Logger()
	if debugAll || debugModules[strings.ToLower(module)] {
		l = l.Level(zerolog.DebugLevel)
	}
	return l
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return logger.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return logger.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return logger.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return logger.Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return logger.Fatal()
}

// zerologWriter adapts zerolog to io.Writer for stdlib log
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Write(p []byte) (n int, err error) {
	// Trim trailing newline that stdlib log adds
	msg := strings.TrimSuffix(string(p), "\n")
	w.logger.Warn().Msg(msg)
	return len(p), nil
}

// StdErrorLogger returns a standard library *log.Logger that logs at warn level
func StdErrorLogger() *stdlog.Logger {
	return stdlog.New(zerologWriter{logger: logger}, "", 0)
}

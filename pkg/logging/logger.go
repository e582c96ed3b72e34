// Package logging configures zerolog for tile-fetch and hands out
// component loggers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentBatchFetcher   = "batch-fetcher"
	ComponentFetchClient    = "fetch-client"
	ComponentHTTPTransport  = "http-transport"
	ComponentCacheTransport = "cache-transport"
	ComponentProxy          = "tile-proxy"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request plumbing
//   - Cache operations (hit, store, key, TTL)
//   - Batch loop progress and handle draining
//   - Transport request start and finish
//
// Info: normal operation events
//   - URL checks and redirects followed
//   - Failed requests inside a batch (the batch itself still succeeds)
//   - Server startup/shutdown
//
// Warn: conditions that don't prevent operation
//   - Load returning a non-2xx status
//   - Cache errors (request goes to the network)
//   - Batch cancelled
//
// Error: conditions requiring attention
//   - Server failures
//   - Configuration errors
//
// Context Fields:
//   - batch_id: UUID of one FetchAll call
//   - label: caller label of a batch request
//   - url: request URL, always passed through redact.SensitiveKey
//   - status: HTTP status code
//   - error_class: client, server or network
//   - completed / total: batch progress
//   - duration: elapsed time
//   - ttl: cache entry TTL

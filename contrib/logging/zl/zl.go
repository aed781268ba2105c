package zl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arloliu/tether/types"
)

// EnvLogLevel names the environment variable that overrides the log level.
const EnvLogLevel = "TETHER_LOG_LEVEL"

// Logger adapts a zerolog.Logger to types.Logger.
type Logger struct {
	zl zerolog.Logger
}

// Compile-time assertion that Logger implements types.Logger.
var _ types.Logger = (*Logger)(nil)

// New wraps an existing zerolog logger.
//
// Parameters:
//   - logger: The zerolog logger to write to
//
// Returns:
//   - *Logger: A types.Logger writing through logger
func New(logger zerolog.Logger) *Logger {
	return &Logger{zl: logger}
}

// FromEnv builds a timestamped zerolog logger writing to w, at the level
// named by TETHER_LOG_LEVEL (default info).
//
// Parameters:
//   - w: Destination; nil writes a console format to stderr
//   - component: Value of the "component" field on every event
//
// Returns:
//   - *Logger: The logger
//   - error: If TETHER_LOG_LEVEL holds an unknown level; the logger is still usable at info
func FromEnv(w io.Writer, component string) (*Logger, error) {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := LevelFromEnv()
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()

	return New(logger), err
}

// LevelFromEnv parses TETHER_LOG_LEVEL. An empty or unknown value yields info;
// an unknown value is also reported as an error.
func LevelFromEnv() (zerolog.Level, error) {
	raw := strings.TrimSpace(os.Getenv(EnvLogLevel))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("tether/zl: invalid %s %q", EnvLogLevel, raw)
	}

	return level, nil
}

// Zerolog returns the wrapped zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	write(l.zl.Debug(), msg, keysAndValues)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	write(l.zl.Info(), msg, keysAndValues)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	write(l.zl.Warn(), msg, keysAndValues)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	write(l.zl.Error(), msg, keysAndValues)
}

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string, keysAndValues ...any) {
	write(l.zl.Fatal(), msg, keysAndValues)
}

// write attaches alternating key/value pairs to the event. A dangling key is
// logged under "!BADKEY", and non-string keys are formatted with %v.
func write(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}

	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			e = e.Interface("!BADKEY", kv[i])
			break
		}

		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}

		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}

	e.Msg(msg)
}

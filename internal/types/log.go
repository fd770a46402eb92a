package types

import (
	"fmt"
	"strings"
	"time"
)

// Level indicates the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the canonical upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel parses a level name. Matching is case-insensitive and accepts
// the common WARN abbreviation.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARNING", "WARN":
		return LevelWarning, true
	case "ERROR":
		return LevelError, true
	case "CRITICAL":
		return LevelCritical, true
	default:
		return LevelInfo, false
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize as
// their names in JSON snapshots and API responses.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, ok := ParseLevel(string(text))
	if !ok {
		return fmt.Errorf("unknown log level %q", string(text))
	}
	*l = parsed
	return nil
}

// LogEntry is a single structured log event emitted by a source.
// Entries are immutable once stored.
type LogEntry struct {
	// Source is the logical origin service (e.g. "BackendAPI").
	Source string `json:"source"`

	// Timestamp is the event time as reported by the source.
	// Out-of-order arrival is expected; the store orders entries itself.
	Timestamp time.Time `json:"timestamp"`

	// Level is the log severity.
	Level Level `json:"level"`

	// Message is the log message text.
	Message string `json:"message"`

	// Metadata holds optional structured key/value context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the severity label attached to an alert rule and carried
// over to every event the rule fires.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the canonical lower-case name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity parses a severity name. Matching is case-insensitive.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, true
	case "warning", "warn":
		return SeverityWarning, true
	case "critical":
		return SeverityCritical, true
	default:
		return SeverityInfo, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = parsed
	return nil
}

// AlertRule is a user-defined alert: a named boolean expression over metric
// values. Name is the identity key. The enabled flag and channels may be
// updated through the registry; everything else is replaced atomically on
// update.
type AlertRule struct {
	// Name uniquely identifies the rule within the registry.
	Name string `json:"name"`

	// Expression is the source text of the boolean predicate, e.g.
	// "requests_per_minute > 100 and error_rate > 0.05".
	// The registry compiles it at add/update time.
	Expression string `json:"expression"`

	// Severity is attached to every event this rule fires.
	Severity Severity `json:"severity"`

	// NotificationChannels lists the outbound channels to signal on fire.
	// Dispatch is handled outside the core.
	NotificationChannels []string `json:"notification_channels"`

	// Enabled gates evaluation. Disabled rules are kept but never fire.
	Enabled bool `json:"enabled"`

	// LastTriggered is the fire time of the most recent event, nil if the
	// rule has never fired.
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// Clone returns a deep copy so registry internals never leak to callers.
func (r *AlertRule) Clone() AlertRule {
	out := *r
	if r.NotificationChannels != nil {
		out.NotificationChannels = append([]string(nil), r.NotificationChannels...)
	}
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		out.LastTriggered = &t
	}
	return out
}

// AlertEvent records a single firing of an alert rule. Events are
// append-only history: they reference the rule by name and survive rule
// deletion unchanged.
type AlertEvent struct {
	// RuleName is the name of the rule at fire time.
	RuleName string `json:"rule_name"`

	// FiredAt equals the timestamp of the triggering sample.
	FiredAt time.Time `json:"fired_at"`

	// TriggeringSource is the source of the triggering sample.
	TriggeringSource string `json:"triggering_source"`

	// TriggeringValues holds the metric values the expression saw.
	TriggeringValues map[string]float64 `json:"triggering_values"`

	// Severity is copied from the rule at fire time.
	Severity Severity `json:"severity"`
}

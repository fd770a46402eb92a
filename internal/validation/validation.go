// Package validation provides centralized input validation for vigil.
//
// Every ingest and registry payload is validated here before any mutation
// touches the store, so a rejected write never leaves partial state behind.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/types"
)

const (
	maxNameLength       = 255
	maxMessageLength    = 64 * 1024
	maxMetricsPerSample = 256
)

// =============================================================================
// Name Validation
// =============================================================================

// ValidateSourceName validates a log/metric source identifier.
func ValidateSourceName(name string) error {
	return validateName("source", name)
}

// ValidateRuleName validates an alert rule name.
func ValidateRuleName(name string) error {
	return validateName("rule name", name)
}

// ValidateMetricName validates a metric name.
func ValidateMetricName(name string) error {
	return validateName("metric name", name)
}

func validateName(field, name string) error {
	if name == "" {
		return errors.NewMissingField(field)
	}
	if len(name) > maxNameLength {
		return errors.NewValidation(field, fmt.Sprintf("longer than %d characters", maxNameLength))
	}
	for i, r := range name {
		if r < 32 || r == 127 {
			return errors.NewValidation(field, fmt.Sprintf("control character at position %d", i))
		}
		if !isAllowedNameChar(r) {
			return errors.NewValidation(field, fmt.Sprintf("invalid character %q at position %d", r, i))
		}
	}
	return nil
}

func isAllowedNameChar(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', '-', '_', ':', ' ':
		return true
	}
	return false
}

// =============================================================================
// Payload Validation
// =============================================================================

// ValidateLogEntry checks a log entry before insertion.
// All problems are collected so callers see every violation at once.
func ValidateLogEntry(e *types.LogEntry) error {
	v := errors.NewValidationErrors()

	if err := ValidateSourceName(e.Source); err != nil {
		v.Add(err)
	}
	if e.Timestamp.IsZero() {
		v.Add(errors.Wrap(errors.ErrInvalidTimestamp, "timestamp"))
	}
	if e.Level < types.LevelDebug || e.Level > types.LevelCritical {
		v.Add(errors.Wrapf(errors.ErrInvalidLevel, "level %d", int(e.Level)))
	}
	if e.Message == "" {
		v.AddMissing("message")
	} else if len(e.Message) > maxMessageLength {
		v.AddField("message", fmt.Sprintf("longer than %d bytes", maxMessageLength))
	}

	return v.Err()
}

// ValidateMetricSample checks a metric sample before insertion.
// A sample with any invalid pair is rejected whole; there is no partial
// insert of a multi-metric sample.
func ValidateMetricSample(s *types.MetricSample) error {
	v := errors.NewValidationErrors()

	if err := ValidateSourceName(s.Source); err != nil {
		v.Add(err)
	}
	if s.Timestamp.IsZero() {
		v.Add(errors.Wrap(errors.ErrInvalidTimestamp, "timestamp"))
	}
	if len(s.Metrics) == 0 {
		v.AddMissing("metrics")
	}
	if len(s.Metrics) > maxMetricsPerSample {
		v.AddField("metrics", fmt.Sprintf("more than %d values in one sample", maxMetricsPerSample))
	}
	for name, value := range s.Metrics {
		if err := ValidateMetricName(name); err != nil {
			v.Add(err)
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			v.AddField("metrics."+name, "value must be finite")
		}
	}

	return v.Err()
}

// ValidateAlertRule checks rule fields other than the expression; the
// expression is compiled (and thereby validated) by the alert package.
func ValidateAlertRule(r *types.AlertRule) error {
	v := errors.NewValidationErrors()

	if err := ValidateRuleName(r.Name); err != nil {
		v.Add(err)
	}
	if strings.TrimSpace(r.Expression) == "" {
		v.AddMissing("expression")
	}
	if r.Severity < types.SeverityInfo || r.Severity > types.SeverityCritical {
		v.Add(errors.Wrapf(errors.ErrInvalidSeverity, "severity %d", int(r.Severity)))
	}
	for i, ch := range r.NotificationChannels {
		if strings.TrimSpace(ch) == "" {
			v.AddField(fmt.Sprintf("notification_channels[%d]", i), "empty channel")
		}
	}

	return v.Err()
}

package store

import (
	"time"

	"github.com/xtxerr/vigil/internal/types"
)

// LogFilter defines criteria for log queries. All fields are optional and
// combined with AND. Zero time bounds mean unbounded.
type LogFilter struct {
	Source string
	Level  *types.Level
	From   time.Time
	To     time.Time

	// Limit caps the result size; when it truncates, the most recent
	// matches are kept.
	Limit int

	// Descending reverses the output to most-recent-first for display.
	// Default output order is ascending by timestamp.
	Descending bool
}

// MetricFilter defines criteria for metric queries. Multi-metric samples
// are flattened to one point per name/value pair; Metric selects a single
// name from each sample.
type MetricFilter struct {
	Metric     string
	Source     string
	From       time.Time
	To         time.Time
	Limit      int
	Descending bool
}

// EventFilter defines criteria for alert-event history queries.
type EventFilter struct {
	Rule       string
	Source     string
	From       time.Time
	To         time.Time
	Limit      int
	Descending bool
}

// QueryLogs returns the log entries matching the filter, ordered ascending
// by timestamp unless Descending is set.
func (s *Store) QueryLogs(f LogFilter) []types.LogEntry {
	window := s.logs.collect(f.Source, f.From, f.To)

	var out []types.LogEntry
	if f.Level == nil {
		out = window
	} else {
		for _, e := range window {
			if e.Level == *f.Level {
				out = append(out, e)
			}
		}
	}

	out = clampTail(out, f.Limit)
	if f.Descending {
		reverse(out)
	}
	return out
}

// QueryMetrics returns flattened metric points matching the filter,
// ordered ascending by timestamp unless Descending is set.
func (s *Store) QueryMetrics(f MetricFilter) []types.MetricPoint {
	window := s.metrics.collect(f.Source, f.From, f.To)

	var out []types.MetricPoint
	for i := range window {
		sample := &window[i]
		if f.Metric != "" {
			value, ok := sample.Metrics[f.Metric]
			if !ok {
				continue
			}
			out = append(out, types.MetricPoint{
				Source:    sample.Source,
				Timestamp: sample.Timestamp,
				Metric:    f.Metric,
				Value:     value,
			})
			continue
		}
		for name, value := range sample.Metrics {
			out = append(out, types.MetricPoint{
				Source:    sample.Source,
				Timestamp: sample.Timestamp,
				Metric:    name,
				Value:     value,
			})
		}
	}

	out = clampTail(out, f.Limit)
	if f.Descending {
		reverse(out)
	}
	return out
}

// QueryAlertEvents returns the alert-event history matching the filter,
// ordered ascending by fire time unless Descending is set.
func (s *Store) QueryAlertEvents(f EventFilter) []types.AlertEvent {
	window := s.events.collect(f.Source, f.From, f.To)

	var out []types.AlertEvent
	if f.Rule == "" {
		out = window
	} else {
		for _, e := range window {
			if e.RuleName == f.Rule {
				out = append(out, e)
			}
		}
	}

	out = clampTail(out, f.Limit)
	if f.Descending {
		reverse(out)
	}
	return out
}

// clampTail keeps the most recent limit elements of an ascending slice.
func clampTail[T any](in []T, limit int) []T {
	if limit <= 0 || len(in) <= limit {
		return in
	}
	return in[len(in)-limit:]
}

func reverse[T any](in []T) {
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
}

// Package report derives compliance reports from the event store and the
// alert registry.
//
// Reports are computed fresh on every call from a single consistent store
// view, so no field of a report can see records another field missed.
// Nothing is cached or stored.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/vigil/internal/store"
	"github.com/xtxerr/vigil/internal/types"
)

// sketchAccuracy is the DDSketch relative accuracy used for metric
// percentiles (1% error).
const sketchAccuracy = 0.01

// ComplianceReport is an aggregated, on-demand summary over retained logs,
// metrics, and alert history for a time window. It is derived, never stored.
type ComplianceReport struct {
	GeneratedAt time.Time  `json:"generated_at"`
	WindowFrom  *time.Time `json:"window_from,omitempty"`
	WindowTo    *time.Time `json:"window_to,omitempty"`

	Logs      LogSummary      `json:"logs"`
	Metrics   []MetricSummary `json:"metrics"`
	Alerts    AlertSummary    `json:"alerts"`
	Retention RetentionInfo   `json:"retention"`
}

// LogSummary breaks the in-window log entries down by level.
type LogSummary struct {
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"by_level"`
}

// MetricSummary aggregates one metric's in-window values, including
// DDSketch percentiles.
type MetricSummary struct {
	Metric string  `json:"metric"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// AlertSummary covers the alert history inside the window plus the current
// registry size.
type AlertSummary struct {
	RuleCount  int            `json:"rule_count"`
	EventTotal int            `json:"event_total"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
}

// RetentionInfo describes what the store currently retains, regardless of
// the requested window.
type RetentionInfo struct {
	TotalLogs    int        `json:"total_logs"`
	TotalMetrics int        `json:"total_metrics"`
	TotalEvents  int        `json:"total_events"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}

// Generate computes a report over [from, to] from a consistent store view.
// Zero bounds mean unbounded on that side. Every field, retention totals
// included, derives from the one view, so concurrent inserts or evictions
// can never appear in some fields of a report but not others.
func Generate(view store.View, rules []types.AlertRule, from, to time.Time) ComplianceReport {
	rep := ComplianceReport{
		GeneratedAt: time.Now().UTC(),
		Logs: LogSummary{
			ByLevel: make(map[string]int),
		},
		Alerts: AlertSummary{
			RuleCount:  len(rules),
			BySeverity: make(map[string]int),
			ByRule:     make(map[string]int),
		},
		Retention: RetentionInfo{
			TotalLogs:    len(view.Logs),
			TotalMetrics: len(view.Metrics),
			TotalEvents:  len(view.Events),
		},
	}
	if !from.IsZero() {
		f := from
		rep.WindowFrom = &f
	}
	if !to.IsZero() {
		t := to
		rep.WindowTo = &t
	}

	inWindow := func(t time.Time) bool {
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}

	for i := range view.Logs {
		e := &view.Logs[i]
		if !inWindow(e.Timestamp) {
			continue
		}
		rep.Logs.Total++
		rep.Logs.ByLevel[e.Level.String()]++
	}

	rep.Metrics = summarizeMetrics(view.Metrics, inWindow)

	for i := range view.Events {
		e := &view.Events[i]
		if !inWindow(e.FiredAt) {
			continue
		}
		rep.Alerts.EventTotal++
		rep.Alerts.BySeverity[e.Severity.String()]++
		rep.Alerts.ByRule[e.RuleName]++
	}

	oldest, newest := retentionRange(view)
	if oldest != nil {
		rep.Retention.Oldest = oldest
		rep.Retention.Newest = newest
	}

	return rep
}

// metricAgg accumulates one metric's running statistics plus a sketch for
// percentiles.
type metricAgg struct {
	count  int
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

func summarizeMetrics(samples []types.MetricSample, inWindow func(time.Time) bool) []MetricSummary {
	aggs := make(map[string]*metricAgg)

	for i := range samples {
		s := &samples[i]
		if !inWindow(s.Timestamp) {
			continue
		}
		for name, value := range s.Metrics {
			agg, ok := aggs[name]
			if !ok {
				agg = &metricAgg{min: math.MaxFloat64, max: -math.MaxFloat64}
				if sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy); err == nil {
					agg.sketch = sketch
				}
				aggs[name] = agg
			}
			agg.count++
			agg.sum += value
			if value < agg.min {
				agg.min = value
			}
			if value > agg.max {
				agg.max = value
			}
			if agg.sketch != nil {
				agg.sketch.Add(value)
			}
		}
	}

	out := make([]MetricSummary, 0, len(aggs))
	for name, agg := range aggs {
		summary := MetricSummary{
			Metric: name,
			Count:  agg.count,
			Min:    agg.min,
			Max:    agg.max,
			Avg:    agg.sum / float64(agg.count),
		}
		if agg.sketch != nil {
			if v, err := agg.sketch.GetValueAtQuantile(0.50); err == nil {
				summary.P50 = v
			}
			if v, err := agg.sketch.GetValueAtQuantile(0.95); err == nil {
				summary.P95 = v
			}
			if v, err := agg.sketch.GetValueAtQuantile(0.99); err == nil {
				summary.P99 = v
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// retentionRange finds the oldest and newest timestamps across logs and
// metrics in the view. Both slices are ascending, so only the ends matter.
func retentionRange(view store.View) (oldest, newest *time.Time) {
	consider := func(first, last time.Time) {
		if oldest == nil || first.Before(*oldest) {
			f := first
			oldest = &f
		}
		if newest == nil || last.After(*newest) {
			l := last
			newest = &l
		}
	}

	if n := len(view.Logs); n > 0 {
		consider(view.Logs[0].Timestamp, view.Logs[n-1].Timestamp)
	}
	if n := len(view.Metrics); n > 0 {
		consider(view.Metrics[0].Timestamp, view.Metrics[n-1].Timestamp)
	}
	return oldest, newest
}

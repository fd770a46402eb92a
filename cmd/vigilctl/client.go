package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xtxerr/vigil/internal/report"
	"github.com/xtxerr/vigil/internal/types"
)

// client wraps the vigild HTTP API for the REPL.
type client struct {
	http *resty.Client
}

func newClient(baseURL, apiKey string) *client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &client{http: c}
}

// apiError is the error body vigild returns on failures.
type apiError struct {
	Error string `json:"error"`
}

// do runs a prepared request and folds HTTP-level failures into one error.
func do(req *resty.Request, method, path string) error {
	resp, err := req.SetError(&apiError{}).Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
		}
		return fmt.Errorf("%s", resp.Status())
	}
	return nil
}

func (c *client) health() (map[string]any, error) {
	var out map[string]any
	err := do(c.http.R().SetResult(&out), "GET", "/")
	return out, err
}

func (c *client) ingestLog(entry types.LogEntry) error {
	return do(c.http.R().SetBody(entry), "POST", "/logs/ingest")
}

func (c *client) ingestMetric(sample types.MetricSample) ([]types.AlertEvent, error) {
	var out struct {
		FiredEvents []types.AlertEvent `json:"fired_events"`
	}
	err := do(c.http.R().SetBody(sample).SetResult(&out), "POST", "/metrics/ingest")
	return out.FiredEvents, err
}

func (c *client) queryLogs(params map[string]string) ([]types.LogEntry, error) {
	var out struct {
		Entries []types.LogEntry `json:"entries"`
	}
	err := do(c.http.R().SetQueryParams(params).SetResult(&out), "GET", "/logs/query")
	return out.Entries, err
}

func (c *client) queryMetrics(params map[string]string) ([]types.MetricPoint, error) {
	var out struct {
		Points []types.MetricPoint `json:"points"`
	}
	err := do(c.http.R().SetQueryParams(params).SetResult(&out), "GET", "/metrics/query")
	return out.Points, err
}

func (c *client) queryEvents(params map[string]string) ([]types.AlertEvent, error) {
	var out struct {
		Events []types.AlertEvent `json:"events"`
	}
	err := do(c.http.R().SetQueryParams(params).SetResult(&out), "GET", "/alerts/events")
	return out.Events, err
}

func (c *client) listRules() ([]types.AlertRule, error) {
	var out struct {
		Rules []types.AlertRule `json:"rules"`
	}
	err := do(c.http.R().SetResult(&out), "GET", "/alerts")
	return out.Rules, err
}

func (c *client) addRule(rule types.AlertRule) error {
	return do(c.http.R().SetBody(rule), "POST", "/alerts")
}

func (c *client) setRuleEnabled(name string, enabled bool) error {
	return do(c.http.R().SetBody(map[string]bool{"enabled": enabled}),
		"PUT", "/alerts/"+name)
}

func (c *client) deleteRule(name string) error {
	return do(c.http.R(), "DELETE", "/alerts/"+name)
}

func (c *client) complianceReport(params map[string]string) (*report.ComplianceReport, error) {
	var out report.ComplianceReport
	err := do(c.http.R().SetQueryParams(params).SetResult(&out), "GET", "/compliance/reports")
	return &out, err
}

// ============================================================================
// Output formatting
// ============================================================================

func printLogs(entries []types.LogEntry) {
	if len(entries) == 0 {
		fmt.Println("no log entries")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s %-20s %s\n",
			e.Timestamp.Format(time.RFC3339), e.Level, e.Source, e.Message)
	}
	fmt.Printf("(%d entries)\n", len(entries))
}

func printPoints(points []types.MetricPoint) {
	if len(points) == 0 {
		fmt.Println("no metric points")
		return
	}
	for _, p := range points {
		fmt.Printf("%s  %-20s %-24s %s\n",
			p.Timestamp.Format(time.RFC3339), p.Source, p.Metric,
			strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	fmt.Printf("(%d points)\n", len(points))
}

func printEvents(events []types.AlertEvent) {
	if len(events) == 0 {
		fmt.Println("no alert events")
		return
	}
	for _, e := range events {
		fmt.Printf("%s  %-8s %-24s source=%s values=%v\n",
			e.FiredAt.Format(time.RFC3339), e.Severity, e.RuleName,
			e.TriggeringSource, e.TriggeringValues)
	}
	fmt.Printf("(%d events)\n", len(events))
}

func printRules(rules []types.AlertRule) {
	if len(rules) == 0 {
		fmt.Println("no rules registered")
		return
	}
	for _, r := range rules {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		last := "never"
		if r.LastTriggered != nil {
			last = r.LastTriggered.Format(time.RFC3339)
		}
		fmt.Printf("%-24s %-8s %-9s last=%s  %s\n",
			r.Name, r.Severity, state, last, r.Expression)
		if len(r.NotificationChannels) > 0 {
			fmt.Printf("%24s channels: %s\n", "", strings.Join(r.NotificationChannels, ", "))
		}
	}
	fmt.Printf("(%d rules)\n", len(rules))
}

func printReport(rep *report.ComplianceReport) {
	fmt.Printf("compliance report generated %s\n", rep.GeneratedAt.Format(time.RFC3339))
	if rep.WindowFrom != nil || rep.WindowTo != nil {
		fmt.Printf("window: %s .. %s\n",
			formatBound(rep.WindowFrom), formatBound(rep.WindowTo))
	}

	fmt.Printf("\nlogs: %d total\n", rep.Logs.Total)
	for level, n := range rep.Logs.ByLevel {
		fmt.Printf("  %-8s %d\n", level, n)
	}

	fmt.Printf("\nmetrics: %d distinct\n", len(rep.Metrics))
	for _, m := range rep.Metrics {
		fmt.Printf("  %-24s n=%-6d min=%-10.4g avg=%-10.4g max=%-10.4g p50=%-10.4g p95=%-10.4g p99=%.4g\n",
			m.Metric, m.Count, m.Min, m.Avg, m.Max, m.P50, m.P95, m.P99)
	}

	fmt.Printf("\nalerts: %d events across %d rules\n",
		rep.Alerts.EventTotal, rep.Alerts.RuleCount)
	for severity, n := range rep.Alerts.BySeverity {
		fmt.Printf("  severity %-8s %d\n", severity, n)
	}
	for rule, n := range rep.Alerts.ByRule {
		fmt.Printf("  rule %-24s %d\n", rule, n)
	}

	fmt.Printf("\nretention: logs=%d metrics=%d events=%d\n",
		rep.Retention.TotalLogs, rep.Retention.TotalMetrics, rep.Retention.TotalEvents)
	if rep.Retention.Oldest != nil {
		fmt.Printf("  oldest=%s newest=%s\n",
			rep.Retention.Oldest.Format(time.RFC3339),
			rep.Retention.Newest.Format(time.RFC3339))
	}
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "unbounded"
	}
	return t.Format(time.RFC3339)
}

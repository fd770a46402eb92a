package service

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/vigil/internal/config"
	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/store"
	"github.com/xtxerr/vigil/internal/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Snapshot.Path = filepath.Join(cfg.DataDir, "snapshot.json")
	return cfg
}

func testService(t *testing.T) *Service {
	t.Helper()
	return New(testConfig(t))
}

func TestIngestLog_Valid(t *testing.T) {
	svc := testService(t)
	err := svc.IngestLog(types.LogEntry{
		Source: "api", Timestamp: base, Level: types.LevelInfo, Message: "up",
	})
	if err != nil {
		t.Fatalf("IngestLog error: %v", err)
	}
	if got := svc.QueryLogs(store.LogFilter{}); len(got) != 1 {
		t.Errorf("stored %d entries, want 1", len(got))
	}
}

func TestIngestLog_InvalidRejectedBeforeStorage(t *testing.T) {
	svc := testService(t)
	err := svc.IngestLog(types.LogEntry{Source: "", Timestamp: base, Level: types.LevelInfo, Message: "x"})
	if !errors.IsValidation(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if got := svc.QueryLogs(store.LogFilter{}); len(got) != 0 {
		t.Errorf("invalid entry was stored: %d", len(got))
	}
}

func TestIngestMetric_EvaluatesRules(t *testing.T) {
	svc := testService(t)
	err := svc.AddRule(types.AlertRule{
		Name: "high-rpm", Expression: "requests_per_minute > 100",
		Severity: types.SeverityCritical, Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddRule error: %v", err)
	}

	fired, err := svc.IngestMetric(types.MetricSample{
		Source: "api", Timestamp: base,
		Metrics: map[string]float64{"requests_per_minute": 250},
	})
	if err != nil {
		t.Fatalf("IngestMetric error: %v", err)
	}
	if len(fired) != 1 || fired[0].RuleName != "high-rpm" {
		t.Fatalf("fired = %+v, want one high-rpm event", fired)
	}

	// The event landed in the store too.
	events := svc.QueryAlertEvents(store.EventFilter{})
	if len(events) != 1 {
		t.Errorf("stored events = %d, want 1", len(events))
	}

	// And LastTriggered was stamped.
	rule, err := svc.GetRule("high-rpm")
	if err != nil {
		t.Fatalf("GetRule error: %v", err)
	}
	if rule.LastTriggered == nil || !rule.LastTriggered.Equal(base) {
		t.Errorf("LastTriggered = %v, want %v", rule.LastTriggered, base)
	}
}

func TestDeleteRule_PreservesEventHistory(t *testing.T) {
	svc := testService(t)
	if err := svc.AddRule(types.AlertRule{
		Name: "r", Expression: "m > 1", Severity: types.SeverityInfo, Enabled: true,
	}); err != nil {
		t.Fatalf("AddRule error: %v", err)
	}
	if _, err := svc.IngestMetric(types.MetricSample{
		Source: "api", Timestamp: base, Metrics: map[string]float64{"m": 5},
	}); err != nil {
		t.Fatalf("IngestMetric error: %v", err)
	}
	if err := svc.DeleteRule("r"); err != nil {
		t.Fatalf("DeleteRule error: %v", err)
	}

	events := svc.QueryAlertEvents(store.EventFilter{Rule: "r"})
	if len(events) != 1 {
		t.Errorf("events after rule deletion = %d, want 1", len(events))
	}
}

func TestQueryLogs_LimitClamping(t *testing.T) {
	cfg := testConfig(t)
	cfg.Query.DefaultLimit = 5
	cfg.Query.MaxLimit = 10
	svc := New(cfg)

	for i := 0; i < 20; i++ {
		if err := svc.IngestLog(types.LogEntry{
			Source: "api", Timestamp: base.Add(time.Duration(i) * time.Second),
			Level: types.LevelInfo, Message: fmt.Sprintf("n=%d", i),
		}); err != nil {
			t.Fatalf("IngestLog error: %v", err)
		}
	}

	if got := svc.QueryLogs(store.LogFilter{}); len(got) != 5 {
		t.Errorf("default limit gave %d, want 5", len(got))
	}
	if got := svc.QueryLogs(store.LogFilter{Limit: 3}); len(got) != 3 {
		t.Errorf("explicit limit gave %d, want 3", len(got))
	}
	if got := svc.QueryLogs(store.LogFilter{Limit: 100}); len(got) != 10 {
		t.Errorf("oversized limit gave %d, want clamp to 10", len(got))
	}
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg)

	if err := svc.IngestLog(types.LogEntry{
		Source: "api", Timestamp: base, Level: types.LevelError, Message: "boom",
	}); err != nil {
		t.Fatalf("IngestLog error: %v", err)
	}
	if err := svc.AddRule(types.AlertRule{
		Name: "r", Expression: "m > 1", Severity: types.SeverityWarning, Enabled: true,
	}); err != nil {
		t.Fatalf("AddRule error: %v", err)
	}
	if _, err := svc.IngestMetric(types.MetricSample{
		Source: "api", Timestamp: base, Metrics: map[string]float64{"m": 5},
	}); err != nil {
		t.Fatalf("IngestMetric error: %v", err)
	}
	if err := svc.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Fresh service over the same snapshot path.
	restored := New(cfg)
	restored.Restore()

	if got := restored.QueryLogs(store.LogFilter{}); len(got) != 1 || got[0].Message != "boom" {
		t.Errorf("restored logs = %+v", got)
	}
	if got := restored.QueryAlertEvents(store.EventFilter{}); len(got) != 1 {
		t.Errorf("restored events = %d, want 1", len(got))
	}
	rule, err := restored.GetRule("r")
	if err != nil {
		t.Fatalf("restored GetRule error: %v", err)
	}
	if rule.LastTriggered == nil {
		t.Error("restored rule lost LastTriggered")
	}

	// The restored registry evaluates again without recompilation issues.
	fired, err := restored.IngestMetric(types.MetricSample{
		Source: "api", Timestamp: base.Add(time.Minute), Metrics: map[string]float64{"m": 9},
	})
	if err != nil {
		t.Fatalf("IngestMetric after restore error: %v", err)
	}
	if len(fired) != 1 {
		t.Errorf("fired = %d after restore, want 1", len(fired))
	}
}

func TestRestore_SnapshotDisabledIsNoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot.Enabled = false
	svc := New(cfg)

	svc.Restore()
	if err := svc.Save(); err != nil {
		t.Errorf("Save with persistence disabled = %v, want nil", err)
	}
}

func TestClose_RejectsFurtherWrites(t *testing.T) {
	svc := testService(t)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	err := svc.IngestLog(types.LogEntry{
		Source: "api", Timestamp: base, Level: types.LevelInfo, Message: "late",
	})
	if !errors.Is(err, errors.ErrClosed) {
		t.Errorf("IngestLog after Close = %v, want ErrClosed", err)
	}

	// Second Close is a no-op.
	if err := svc.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestHealth(t *testing.T) {
	svc := testService(t)
	if err := svc.IngestLog(types.LogEntry{
		Source: "api", Timestamp: base, Level: types.LevelInfo, Message: "x",
	}); err != nil {
		t.Fatalf("IngestLog error: %v", err)
	}

	h := svc.Health()
	if h.Logs != 1 || h.Rules != 0 {
		t.Errorf("Health = %+v", h)
	}
	if h.Oldest == nil || !h.Oldest.Equal(base) {
		t.Errorf("Oldest = %v, want %v", h.Oldest, base)
	}
}

func TestReport_FieldsAgreeUnderConcurrentIngest(t *testing.T) {
	svc := testService(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			_ = svc.IngestLog(types.LogEntry{
				Source: "api", Timestamp: base.Add(time.Duration(i) * time.Millisecond),
				Level: types.LevelInfo, Message: "x",
			})
			if i%500 == 499 {
				svc.EvictBefore(base.Add(time.Duration(i/2) * time.Millisecond))
			}
		}
	}()

	// An unbounded report covers every retained record, so its in-window
	// log count must always equal its retention total, no matter what is
	// inserted or evicted while reports are being generated.
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		rep := svc.Report(time.Time{}, time.Time{})
		if rep.Logs.Total != rep.Retention.TotalLogs {
			t.Fatalf("Logs.Total = %d, Retention.TotalLogs = %d; report mixed records across fields",
				rep.Logs.Total, rep.Retention.TotalLogs)
		}
	}
}

func TestReport_EndToEnd(t *testing.T) {
	svc := testService(t)
	for i := 0; i < 10; i++ {
		if _, err := svc.IngestMetric(types.MetricSample{
			Source: "api", Timestamp: base.Add(time.Duration(i) * time.Second),
			Metrics: map[string]float64{"latency_ms": float64(10 * (i + 1))},
		}); err != nil {
			t.Fatalf("IngestMetric error: %v", err)
		}
	}

	rep := svc.Report(time.Time{}, time.Time{})
	if len(rep.Metrics) != 1 || rep.Metrics[0].Count != 10 {
		t.Fatalf("report metrics = %+v", rep.Metrics)
	}
	if rep.Metrics[0].Max != 100 {
		t.Errorf("Max = %v, want 100", rep.Metrics[0].Max)
	}
}

package alert

import (
	"testing"
	"time"

	"github.com/xtxerr/vigil/internal/types"
)

// memorySink collects alert events for assertions.
type memorySink struct {
	events []types.AlertEvent
}

func (m *memorySink) InsertAlertEvent(event types.AlertEvent) {
	m.events = append(m.events, event)
}

func newTestEvaluator(t *testing.T, rules ...types.AlertRule) (*Evaluator, *memorySink, *Dispatcher) {
	t.Helper()
	registry := NewRegistry()
	for _, r := range rules {
		if err := registry.Add(r); err != nil {
			t.Fatalf("Add(%s) error: %v", r.Name, err)
		}
	}
	sink := &memorySink{}
	dispatcher := NewDispatcher(16)
	return NewEvaluator(registry, sink, dispatcher), sink, dispatcher
}

func sampleWith(values map[string]float64) types.MetricSample {
	return types.MetricSample{
		Source:    "api",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Metrics:   values,
	}
}

func TestEvaluate_FiresAboveThresholdOnly(t *testing.T) {
	rule := types.AlertRule{
		Name:       "high-rpm",
		Expression: "requests_per_minute > 100",
		Severity:   types.SeverityCritical,
		Enabled:    true,
	}
	ev, sink, _ := newTestEvaluator(t, rule)

	if fired := ev.Evaluate(sampleWith(map[string]float64{"requests_per_minute": 100})); len(fired) != 0 {
		t.Errorf("fired at exactly 100: %v", fired)
	}
	if fired := ev.Evaluate(sampleWith(map[string]float64{"requests_per_minute": 101})); len(fired) != 1 {
		t.Fatalf("fired = %d events at 101, want 1", len(fired))
	}
	if len(sink.events) != 1 {
		t.Fatalf("sink has %d events, want 1", len(sink.events))
	}

	event := sink.events[0]
	if event.RuleName != "high-rpm" {
		t.Errorf("RuleName = %q", event.RuleName)
	}
	if event.Severity != types.SeverityCritical {
		t.Errorf("Severity = %v", event.Severity)
	}
	if event.TriggeringSource != "api" {
		t.Errorf("TriggeringSource = %q", event.TriggeringSource)
	}
	if event.TriggeringValues["requests_per_minute"] != 101 {
		t.Errorf("TriggeringValues = %v", event.TriggeringValues)
	}
}

func TestEvaluate_EventTimeEqualsSampleTime(t *testing.T) {
	rule := types.AlertRule{Name: "r", Expression: "m > 1", Severity: types.SeverityInfo, Enabled: true}
	ev, sink, _ := newTestEvaluator(t, rule)

	sample := sampleWith(map[string]float64{"m": 2})
	ev.Evaluate(sample)

	if !sink.events[0].FiredAt.Equal(sample.Timestamp) {
		t.Errorf("FiredAt = %v, want sample time %v", sink.events[0].FiredAt, sample.Timestamp)
	}
}

func TestEvaluate_SkipsRuleWithAbsentMetric(t *testing.T) {
	rule := types.AlertRule{Name: "disk", Expression: "disk_free < 10", Severity: types.SeverityWarning, Enabled: true}
	ev, sink, _ := newTestEvaluator(t, rule)

	ev.Evaluate(sampleWith(map[string]float64{"cpu": 0.99}))
	if len(sink.events) != 0 {
		t.Errorf("fired %d events for unrelated sample, want 0", len(sink.events))
	}

	stats := ev.Stats()
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
	if stats.Failures != 0 {
		t.Errorf("Failures = %d, want 0", stats.Failures)
	}
}

func TestEvaluate_DisabledRuleNeverFires(t *testing.T) {
	rule := types.AlertRule{Name: "off", Expression: "m > 1", Severity: types.SeverityInfo, Enabled: false}
	ev, sink, _ := newTestEvaluator(t, rule)

	ev.Evaluate(sampleWith(map[string]float64{"m": 100}))
	if len(sink.events) != 0 {
		t.Errorf("disabled rule fired %d events", len(sink.events))
	}
}

func TestEvaluate_NoDebouncing(t *testing.T) {
	rule := types.AlertRule{Name: "r", Expression: "m > 1", Severity: types.SeverityInfo, Enabled: true}
	ev, sink, _ := newTestEvaluator(t, rule)

	for i := 0; i < 3; i++ {
		ev.Evaluate(sampleWith(map[string]float64{"m": 5}))
	}
	if len(sink.events) != 3 {
		t.Errorf("sustained condition fired %d events, want 3", len(sink.events))
	}
}

func TestEvaluate_MarksLastTriggered(t *testing.T) {
	registry := NewRegistry()
	rule := types.AlertRule{Name: "r", Expression: "m > 1", Severity: types.SeverityInfo, Enabled: true}
	if err := registry.Add(rule); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	ev := NewEvaluator(registry, &memorySink{}, NewDispatcher(4))

	sample := sampleWith(map[string]float64{"m": 5})
	ev.Evaluate(sample)

	got, _ := registry.Get("r")
	if got.LastTriggered == nil || !got.LastTriggered.Equal(sample.Timestamp) {
		t.Errorf("LastTriggered = %v, want %v", got.LastTriggered, sample.Timestamp)
	}
}

func TestEvaluate_PublishesNotification(t *testing.T) {
	rule := types.AlertRule{
		Name:                 "r",
		Expression:           "m > 1",
		Severity:             types.SeverityWarning,
		NotificationChannels: []string{"email", "slack"},
		Enabled:              true,
	}
	ev, _, dispatcher := newTestEvaluator(t, rule)

	ev.Evaluate(sampleWith(map[string]float64{"m": 5}))

	select {
	case n := <-dispatcher.Notifications():
		if n.Event.RuleName != "r" {
			t.Errorf("notification rule = %q", n.Event.RuleName)
		}
		if len(n.Channels) != 2 {
			t.Errorf("channels = %v", n.Channels)
		}
	default:
		t.Fatal("no notification published")
	}
}

func TestEvaluate_TriggeringValuesOnlyReferenced(t *testing.T) {
	rule := types.AlertRule{Name: "r", Expression: "cpu > 0.5", Severity: types.SeverityInfo, Enabled: true}
	ev, sink, _ := newTestEvaluator(t, rule)

	ev.Evaluate(sampleWith(map[string]float64{"cpu": 0.9, "mem": 100, "disk": 5}))
	values := sink.events[0].TriggeringValues
	if len(values) != 1 {
		t.Errorf("TriggeringValues = %v, want only cpu", values)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1)
	n := Notification{Event: types.AlertEvent{RuleName: "r"}}

	if !d.Publish(n) {
		t.Fatal("first Publish returned false")
	}
	if d.Publish(n) {
		t.Fatal("second Publish returned true on a full queue")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}
}

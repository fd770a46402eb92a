package types

import (
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarning, true},
		{"warn", LevelWarning, true},
		{"error", LevelError, true},
		{"CRITICAL", LevelCritical, true},
		{"fatal", LevelInfo, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseLevel(%q) = %v/%v, want %v/%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	if got, ok := ParseSeverity("WARN"); !ok || got != SeverityWarning {
		t.Errorf("ParseSeverity(WARN) = %v/%v", got, ok)
	}
	if _, ok := ParseSeverity("panic"); ok {
		t.Error("ParseSeverity(panic) ok, want false")
	}
}

func TestMetricSample_Has(t *testing.T) {
	s := MetricSample{Metrics: map[string]float64{"cpu": 0, "mem": 42}}
	if !s.Has("cpu") {
		t.Error("Has(cpu) = false, want true for a stored zero value")
	}
	if s.Has("disk") {
		t.Error("Has(disk) = true, want false")
	}
}

func TestAlertRule_CloneIsDeep(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := AlertRule{
		Name:                 "r",
		Expression:           "m > 1",
		NotificationChannels: []string{"email"},
		LastTriggered:        &last,
	}

	clone := orig.Clone()
	clone.NotificationChannels[0] = "mutated"
	*clone.LastTriggered = last.Add(time.Hour)

	if orig.NotificationChannels[0] != "email" {
		t.Error("Clone shares NotificationChannels backing array")
	}
	if !orig.LastTriggered.Equal(last) {
		t.Error("Clone shares LastTriggered pointer")
	}
}

package alert

import (
	"log/slog"
	"sync/atomic"

	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/types"
)

// EventSink receives fired alert events; the event store implements it.
type EventSink interface {
	InsertAlertEvent(event types.AlertEvent)
}

// Evaluator matches freshly ingested metric samples against the enabled
// rules and records an alert event for every rule that holds.
//
// There is no debouncing: a rule that stays true fires on every sample.
// Suppressing repeat fires while a condition persists belongs to the
// notification subsystem, which sees every event.
type Evaluator struct {
	registry   *Registry
	sink       EventSink
	dispatcher *Dispatcher
	log        *slog.Logger

	// Statistics
	evaluated atomic.Int64
	fired     atomic.Int64
	skipped   atomic.Int64
	failures  atomic.Int64
}

// NewEvaluator creates an evaluator over the given registry, event sink,
// and notification dispatcher.
func NewEvaluator(registry *Registry, sink EventSink, dispatcher *Dispatcher) *Evaluator {
	return &Evaluator{
		registry:   registry,
		sink:       sink,
		dispatcher: dispatcher,
		log:        logging.Component("alert"),
	}
}

// Evaluate runs every enabled rule against the sample and returns the
// events that fired. Rules referencing metrics absent from the sample are
// skipped; a rule whose evaluation fails is skipped and logged. Errors
// never propagate: alert evaluation must not block or fail the ingest path.
func (e *Evaluator) Evaluate(sample types.MetricSample) []types.AlertEvent {
	var events []types.AlertEvent

	for _, rule := range e.registry.snapshotCompiled(true) {
		if !referencesSubset(rule.Expr.Metrics(), &sample) {
			e.skipped.Add(1)
			continue
		}

		e.evaluated.Add(1)
		ok, err := rule.Expr.Eval(sample.Metrics)
		if err != nil {
			e.failures.Add(1)
			e.log.Error("rule evaluation failed, skipping",
				"rule", rule.Rule.Name, "expression", rule.Rule.Expression, "error", err)
			continue
		}
		if !ok {
			continue
		}

		event := types.AlertEvent{
			RuleName:         rule.Rule.Name,
			FiredAt:          sample.Timestamp,
			TriggeringSource: sample.Source,
			TriggeringValues: triggeringValues(rule.Expr.Metrics(), sample.Metrics),
			Severity:         rule.Rule.Severity,
		}

		e.sink.InsertAlertEvent(event)
		e.registry.MarkTriggered(rule.Rule.Name, sample.Timestamp)
		e.dispatcher.Publish(Notification{
			Event:    event,
			Channels: rule.Rule.NotificationChannels,
		})

		e.fired.Add(1)
		e.log.Info("alert fired",
			"rule", rule.Rule.Name,
			"severity", rule.Rule.Severity.String(),
			"source", sample.Source,
			"fired_at", event.FiredAt)
		events = append(events, event)
	}

	return events
}

// referencesSubset reports whether the sample carries every referenced
// metric.
func referencesSubset(referenced []string, sample *types.MetricSample) bool {
	for _, name := range referenced {
		if !sample.Has(name) {
			return false
		}
	}
	return true
}

// triggeringValues copies only the values the expression looked at, so the
// recorded event stays small for wide samples.
func triggeringValues(referenced []string, values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(referenced))
	for _, name := range referenced {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Stats holds evaluator counters.
type Stats struct {
	Evaluated int64
	Fired     int64
	Skipped   int64
	Failures  int64
}

// Stats returns the current evaluator counters.
func (e *Evaluator) Stats() Stats {
	return Stats{
		Evaluated: e.evaluated.Load(),
		Fired:     e.fired.Load(),
		Skipped:   e.skipped.Load(),
		Failures:  e.failures.Load(),
	}
}

// Package store implements the in-memory event store: three time-ordered,
// source-indexed collections holding log entries, metric samples, and alert
// events.
//
// Records are immutable once inserted. Each collection is sharded by source
// so writers for different sources never contend on the same lock, and each
// shard keeps its records sorted by timestamp so range queries run in time
// proportional to the matched window.
//
// Validation happens in the facade before records reach this package.
package store

import (
	"sync"
	"time"

	"github.com/xtxerr/vigil/internal/types"
)

// Store is the shared event store. All mutation goes through its public
// operations; no component touches records directly.
type Store struct {
	// viewMu serializes consistent snapshots against writers: writers hold
	// it in read mode (concurrent with each other), View holds it in write
	// mode for the duration of the copy.
	viewMu sync.RWMutex

	logs    *series[types.LogEntry]
	metrics *series[types.MetricSample]
	events  *series[types.AlertEvent]
}

// New creates an empty store.
func New() *Store {
	return &Store{
		logs: newSeries(
			func(e *types.LogEntry) time.Time { return e.Timestamp },
			func(e *types.LogEntry) string { return e.Source },
		),
		metrics: newSeries(
			func(s *types.MetricSample) time.Time { return s.Timestamp },
			func(s *types.MetricSample) string { return s.Source },
		),
		events: newSeries(
			func(e *types.AlertEvent) time.Time { return e.FiredAt },
			func(e *types.AlertEvent) string { return e.TriggeringSource },
		),
	}
}

// InsertLog appends a log entry at its timestamp position.
func (s *Store) InsertLog(entry types.LogEntry) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	s.logs.insert(entry)
}

// InsertMetric appends a metric sample at its timestamp position.
// The store itself triggers no side effects; alert evaluation is driven
// by the facade after a successful insert.
func (s *Store) InsertMetric(sample types.MetricSample) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	s.metrics.insert(sample)
}

// InsertAlertEvent appends a fired-alert record to the append-only history.
func (s *Store) InsertAlertEvent(event types.AlertEvent) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	s.events.insert(event)
}

// View is a consistent point-in-time copy of all three collections,
// each ordered ascending by timestamp.
type View struct {
	TakenAt time.Time
	Logs    []types.LogEntry
	Metrics []types.MetricSample
	Events  []types.AlertEvent
}

// View takes a consistent snapshot of the whole store. Writers are held
// off only for the time it takes to copy the record slices; the copies are
// then safe to read without any locking. Used by the snapshot persister
// and the compliance reporter.
func (s *Store) View() View {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	return View{
		TakenAt: time.Now().UTC(),
		Logs:    s.logs.collect("", time.Time{}, time.Time{}),
		Metrics: s.metrics.collect("", time.Time{}, time.Time{}),
		Events:  s.events.collect("", time.Time{}, time.Time{}),
	}
}

// Restore bulk-loads records from a snapshot into an empty store.
func (s *Store) Restore(logs []types.LogEntry, metrics []types.MetricSample, events []types.AlertEvent) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()

	for _, e := range logs {
		s.logs.insert(e)
	}
	for _, m := range metrics {
		s.metrics.insert(m)
	}
	for _, e := range events {
		s.events.insert(e)
	}
}

// Counts holds the record totals per collection.
type Counts struct {
	Logs    int
	Metrics int
	Events  int
}

// Counts returns the current record totals.
func (s *Store) Counts() Counts {
	return Counts{
		Logs:    s.logs.len(),
		Metrics: s.metrics.len(),
		Events:  s.events.len(),
	}
}

// TimeRange returns the oldest and newest timestamps present across logs
// and metrics. ok is false when both collections are empty.
func (s *Store) TimeRange() (oldest, newest time.Time, ok bool) {
	lo, ln, lok := s.logs.timeRange()
	mo, mn, mok := s.metrics.timeRange()

	switch {
	case lok && mok:
		oldest, newest = lo, ln
		if mo.Before(oldest) {
			oldest = mo
		}
		if mn.After(newest) {
			newest = mn
		}
		return oldest, newest, true
	case lok:
		return lo, ln, true
	case mok:
		return mo, mn, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// EvictBefore drops all logs, metrics, and alert events older than the
// cutoff. The retention policy that decides the cutoff lives outside the
// core; nothing in this process schedules eviction.
func (s *Store) EvictBefore(cutoff time.Time) (logs, metrics, events int) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()

	return s.logs.evictBefore(cutoff),
		s.metrics.evictBefore(cutoff),
		s.events.evictBefore(cutoff)
}

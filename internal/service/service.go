// Package service wires the store, alert engine, snapshot persister, and
// reporter into the single facade the transports call.
//
// The facade owns the write path ordering: validate, insert, then evaluate
// alerts. Evaluation failures never fail an ingest.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/vigil/internal/alert"
	"github.com/xtxerr/vigil/internal/config"
	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/report"
	"github.com/xtxerr/vigil/internal/snapshot"
	"github.com/xtxerr/vigil/internal/store"
	"github.com/xtxerr/vigil/internal/types"
	"github.com/xtxerr/vigil/internal/validation"
)

// Service is the observability core facade. All transports (HTTP, CLI) go
// through it; nothing reaches the store or registry directly.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	registry   *alert.Registry
	dispatcher *alert.Dispatcher
	evaluator  *alert.Evaluator
	persister  *snapshot.Persister
	log        *slog.Logger

	// saveMu serializes snapshot saves (periodic vs. shutdown).
	saveMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// New assembles a service from the configuration. Call Restore before
// serving traffic if a previous snapshot should be loaded.
func New(cfg *config.Config) *Service {
	st := store.New()
	registry := alert.NewRegistry()
	dispatcher := alert.NewDispatcher(cfg.Alerts.QueueSize)

	s := &Service{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		dispatcher: dispatcher,
		evaluator:  alert.NewEvaluator(registry, st, dispatcher),
		log:        logging.Component("service"),
	}
	if cfg.Snapshot.Enabled {
		s.persister = snapshot.NewPersister(cfg.Snapshot.Path)
	}
	return s
}

// Restore loads the snapshot, if persistence is enabled, and bulk-loads it
// into the store and registry. A corrupt snapshot is logged and the service
// starts empty; restore never fails startup.
func (s *Service) Restore() {
	if s.persister == nil {
		return
	}

	snap, err := s.persister.Load()
	if err != nil {
		s.log.Error("snapshot unusable, starting empty",
			"path", s.persister.Path(), "error", err)
		return
	}

	s.store.Restore(snap.Logs, snap.Metrics, snap.AlertEvents)
	if dropped := s.registry.Restore(snap.Rules); len(dropped) > 0 {
		s.log.Warn("dropped rules with uncompilable expressions on restore",
			"rules", dropped)
	}
}

// checkOpen returns ErrClosed after Close has run.
func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrClosed
	}
	return nil
}

// ============================================================================
// Ingest
// ============================================================================

// IngestLog validates and stores a log entry.
func (s *Service) IngestLog(entry types.LogEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validation.ValidateLogEntry(&entry); err != nil {
		return err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	s.store.InsertLog(entry)
	return nil
}

// IngestMetric validates and stores a metric sample, then evaluates the
// enabled alert rules against it. The fired events are returned so callers
// can surface them; an empty slice is the common case.
func (s *Service) IngestMetric(sample types.MetricSample) ([]types.AlertEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validation.ValidateMetricSample(&sample); err != nil {
		return nil, err
	}
	sample.Timestamp = sample.Timestamp.UTC()
	s.store.InsertMetric(sample)
	return s.evaluator.Evaluate(sample), nil
}

// ============================================================================
// Query
// ============================================================================

// clampLimit applies the configured default and maximum to a requested
// result limit.
func (s *Service) clampLimit(requested int) int {
	if requested <= 0 {
		return s.cfg.Query.DefaultLimit
	}
	if requested > s.cfg.Query.MaxLimit {
		return s.cfg.Query.MaxLimit
	}
	return requested
}

// QueryLogs returns log entries matching the filter, with the limit clamped
// to the configured bounds.
func (s *Service) QueryLogs(f store.LogFilter) []types.LogEntry {
	f.Limit = s.clampLimit(f.Limit)
	return s.store.QueryLogs(f)
}

// QueryMetrics returns flattened metric points matching the filter.
func (s *Service) QueryMetrics(f store.MetricFilter) []types.MetricPoint {
	f.Limit = s.clampLimit(f.Limit)
	return s.store.QueryMetrics(f)
}

// QueryAlertEvents returns the alert-event history matching the filter.
func (s *Service) QueryAlertEvents(f store.EventFilter) []types.AlertEvent {
	f.Limit = s.clampLimit(f.Limit)
	return s.store.QueryAlertEvents(f)
}

// ============================================================================
// Alert rules
// ============================================================================

// AddRule registers a new alert rule.
func (s *Service) AddRule(rule types.AlertRule) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.registry.Add(rule); err != nil {
		return err
	}
	s.log.Info("alert rule added", "rule", rule.Name, "expression", rule.Expression)
	return nil
}

// UpdateRule applies a partial update to an existing rule and returns the
// updated definition.
func (s *Service) UpdateRule(name string, patch alert.RulePatch) (types.AlertRule, error) {
	if err := s.checkOpen(); err != nil {
		return types.AlertRule{}, err
	}
	rule, err := s.registry.Update(name, patch)
	if err != nil {
		return types.AlertRule{}, err
	}
	s.log.Info("alert rule updated", "rule", name)
	return rule, nil
}

// DeleteRule removes a rule. Its past alert events remain queryable.
func (s *Service) DeleteRule(name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.registry.Delete(name); err != nil {
		return err
	}
	s.log.Info("alert rule deleted", "rule", name)
	return nil
}

// GetRule returns a copy of the named rule.
func (s *Service) GetRule(name string) (types.AlertRule, error) {
	return s.registry.Get(name)
}

// ListRules returns copies of all registered rules.
func (s *Service) ListRules() []types.AlertRule {
	return s.registry.List(false)
}

// Notifications exposes the outbound notification queue for an external
// delivery consumer.
func (s *Service) Notifications() <-chan alert.Notification {
	return s.dispatcher.Notifications()
}

// ============================================================================
// Reporting and introspection
// ============================================================================

// Report generates a compliance report over [from, to]. Zero bounds mean
// unbounded on that side. The report is computed from a single store view,
// taken once; the store is not read again during generation.
func (s *Service) Report(from, to time.Time) report.ComplianceReport {
	view := s.store.View()
	return report.Generate(view, s.registry.List(false), from, to)
}

// Health summarizes the running service for the health endpoint.
type Health struct {
	Logs       int         `json:"logs"`
	Metrics    int         `json:"metrics"`
	Events     int         `json:"events"`
	Rules      int         `json:"rules"`
	Evaluator  alert.Stats `json:"evaluator"`
	Dropped    int64       `json:"notifications_dropped"`
	Oldest     *time.Time  `json:"oldest,omitempty"`
	Newest     *time.Time  `json:"newest,omitempty"`
}

// Health returns current store and alert-engine statistics.
func (s *Service) Health() Health {
	counts := s.store.Counts()
	h := Health{
		Logs:      counts.Logs,
		Metrics:   counts.Metrics,
		Events:    counts.Events,
		Rules:     s.registry.Len(),
		Evaluator: s.evaluator.Stats(),
		Dropped:   s.dispatcher.Dropped(),
	}
	if oldest, newest, ok := s.store.TimeRange(); ok {
		h.Oldest = &oldest
		h.Newest = &newest
	}
	return h
}

// EvictBefore drops all records older than the cutoff and returns the
// per-collection eviction counts. Scheduling a retention policy is the
// operator's concern; nothing in the service calls this on a timer.
func (s *Service) EvictBefore(cutoff time.Time) (logs, metrics, events int) {
	logs, metrics, events = s.store.EvictBefore(cutoff)
	if logs+metrics+events > 0 {
		s.log.Info("evicted records",
			"cutoff", cutoff, "logs", logs, "metrics", metrics, "events", events)
	}
	return logs, metrics, events
}

// ============================================================================
// Persistence and lifecycle
// ============================================================================

// Save takes a consistent view of the store and registry and writes it to
// the snapshot file. A no-op when persistence is disabled.
func (s *Service) Save() error {
	if s.persister == nil {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	view := s.store.View()
	return s.persister.Save(view, s.registry.List(false))
}

// Run drives the periodic snapshot loop until the context is canceled.
// A failed periodic save is logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.persister != nil {
		interval := s.cfg.Snapshot.Interval.Std()
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			s.log.Info("periodic snapshots enabled",
				"interval", interval, "path", s.persister.Path())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := s.Save(); err != nil {
						s.log.Error("periodic snapshot failed", "error", err)
					}
				}
			}
		})
	}

	return g.Wait()
}

// Close stops accepting writes, performs a final snapshot save, and closes
// the notification queue. Safe to call once.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Save()
	if err != nil {
		s.log.Error("final snapshot failed", "error", err)
	}
	s.dispatcher.Close()
	s.log.Info("service closed")
	return err
}

package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/xtxerr/vigil/internal/alert"
	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/store"
	"github.com/xtxerr/vigil/internal/types"
)

// maxBodyBytes caps ingest payload sizes.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "vigil",
		"status":  "ok",
		"stats":   s.svc.Health(),
	})
}

// ============================================================================
// Logs
// ============================================================================

func (s *Server) handleLogIngest(w http.ResponseWriter, r *http.Request) {
	var entry types.LogEntry
	if !decodeBody(w, r, &entry) {
		return
	}
	if err := s.svc.IngestLog(entry); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"accepted": true})
}

func (s *Server) handleLogQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.LogFilter{Source: q.Get("source")}
	if raw := q.Get("level"); raw != "" {
		level, ok := types.ParseLevel(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown log level "+strconv.Quote(raw))
			return
		}
		f.Level = &level
	}
	var ok bool
	if f.From, f.To, f.Limit, f.Descending, ok = parseRangeParams(w, q); !ok {
		return
	}

	entries := s.svc.QueryLogs(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": emptyAsList(entries),
	})
}

// ============================================================================
// Metrics
// ============================================================================

func (s *Server) handleMetricIngest(w http.ResponseWriter, r *http.Request) {
	var sample types.MetricSample
	if !decodeBody(w, r, &sample) {
		return
	}
	fired, err := s.svc.IngestMetric(sample)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"accepted":     true,
		"fired_events": emptyAsList(fired),
	})
}

func (s *Server) handleMetricQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.MetricFilter{
		Metric: q.Get("metric"),
		Source: q.Get("source"),
	}
	var ok bool
	if f.From, f.To, f.Limit, f.Descending, ok = parseRangeParams(w, q); !ok {
		return
	}

	points := s.svc.QueryMetrics(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(points),
		"points": emptyAsList(points),
	})
}

// ============================================================================
// Alert rules and events
// ============================================================================

func (s *Server) handleRuleList(w http.ResponseWriter, r *http.Request) {
	rules := s.svc.ListRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(rules),
		"rules": emptyAsList(rules),
	})
}

func (s *Server) handleRuleAdd(w http.ResponseWriter, r *http.Request) {
	var rule types.AlertRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if err := s.svc.AddRule(rule); err != nil {
		writeServiceError(w, err)
		return
	}
	created, err := s.svc.GetRule(rule.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.audit(r, "rule created", "rule", rule.Name)
	writeJSON(w, http.StatusCreated, created)
}

// rulePatchRequest is the wire form of a partial rule update. Pointer fields
// distinguish "absent" from zero values.
type rulePatchRequest struct {
	Expression           *string         `json:"expression"`
	Severity             *types.Severity `json:"severity"`
	NotificationChannels *[]string       `json:"notification_channels"`
	Enabled              *bool           `json:"enabled"`
}

func (s *Server) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req rulePatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := s.svc.UpdateRule(name, alert.RulePatch{
		Expression:           req.Expression,
		Severity:             req.Severity,
		NotificationChannels: req.NotificationChannels,
		Enabled:              req.Enabled,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.audit(r, "rule updated", "rule", name)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.svc.DeleteRule(name); err != nil {
		writeServiceError(w, err)
		return
	}
	s.audit(r, "rule deleted", "rule", name)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

func (s *Server) handleEventQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.EventFilter{
		Rule:   q.Get("rule"),
		Source: q.Get("source"),
	}
	var ok bool
	if f.From, f.To, f.Limit, f.Descending, ok = parseRangeParams(w, q); !ok {
		return
	}

	events := s.svc.QueryAlertEvents(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": emptyAsList(events),
	})
}

// ============================================================================
// Compliance
// ============================================================================

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseTimeParam(w, q.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, q.Get("to"), "to")
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.svc.Report(from, to))
}

// ============================================================================
// Shared helpers
// ============================================================================

// audit logs a mutation together with the authenticated caller identity.
// The caller attribute is empty when authentication is disabled.
func (s *Server) audit(r *http.Request, msg string, args ...any) {
	s.log.Info(msg, append(args, "caller", logging.CallerFromContext(r.Context()))...)
}

// decodeBody decodes a JSON request body, rejecting unknown fields. Writes
// the error response itself and reports success.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseRangeParams extracts the from/to/limit/order query parameters shared
// by all query endpoints.
func parseRangeParams(w http.ResponseWriter, q url.Values) (from, to time.Time, limit int, descending, ok bool) {
	if from, ok = parseTimeParam(w, q.Get("from"), "from"); !ok {
		return
	}
	if to, ok = parseTimeParam(w, q.Get("to"), "to"); !ok {
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return from, to, 0, false, false
		}
		limit = n
	}
	descending = q.Get("order") == "desc"
	return from, to, limit, descending, true
}

// parseTimeParam parses an RFC 3339 query parameter; empty means unset.
func parseTimeParam(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

// emptyAsList keeps empty results serializing as [] instead of null.
func emptyAsList[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Component("http").Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service error categories onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsAlreadyExists(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errors.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Package server exposes the service facade over HTTP.
//
// Routes mirror the ingest/query split of the core:
//
//	GET  /                   health and statistics
//	POST /logs/ingest        store a log entry
//	GET  /logs/query         query log entries
//	POST /metrics/ingest     store a metric sample (and evaluate alerts)
//	GET  /metrics/query      query metric points
//	GET  /alerts             list alert rules
//	POST /alerts             register an alert rule
//	PUT  /alerts/{name}      update an alert rule
//	DELETE /alerts/{name}    delete an alert rule
//	GET  /alerts/events      query fired-alert history
//	GET  /compliance/reports generate a compliance report
//
// Authentication is a static bearer-key scheme: each configured key maps to
// a caller name that is attached to the request context for logging. With
// no keys configured every caller is accepted (local/dev use).
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi"

	"github.com/xtxerr/vigil/internal/config"
	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/service"
)

// Server is the HTTP front end over the service facade.
type Server struct {
	svc  *service.Service
	keys map[string]string // bearer key -> caller name
	log  *slog.Logger

	reqID atomic.Uint64
}

// New creates a server for the given service and configuration.
func New(svc *service.Service, cfg *config.Config) *Server {
	keys := make(map[string]string, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		keys[k.Key] = k.Name
	}
	return &Server{
		svc:  svc,
		keys: keys,
		log:  logging.Component("http"),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(s.logRequests)

	r.Get("/", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/logs/ingest", s.handleLogIngest)
		r.Get("/logs/query", s.handleLogQuery)

		r.Post("/metrics/ingest", s.handleMetricIngest)
		r.Get("/metrics/query", s.handleMetricQuery)

		r.Get("/alerts", s.handleRuleList)
		r.Post("/alerts", s.handleRuleAdd)
		r.Put("/alerts/{name}", s.handleRuleUpdate)
		r.Delete("/alerts/{name}", s.handleRuleDelete)
		r.Get("/alerts/events", s.handleEventQuery)

		r.Get("/compliance/reports", s.handleReport)
	})

	return r
}

// ListenAndServe serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown failed", "error", err)
		}
	}()

	s.log.Info("http server listening", "addr", addr)
	err := srv.ListenAndServe()
	<-done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.reqID.Add(1)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response code for the request log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logging.WithContext(r.Context()).Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// authenticate checks the bearer key and attaches the caller identity to the
// request context. An empty key set disables authentication.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeServiceError(w, errors.Wrap(errors.ErrInvalidAPIKey, "missing bearer token"))
			return
		}
		caller, ok := s.keys[token]
		if !ok {
			s.log.Warn("rejected request with unknown API key",
				"method", r.Method, "path", r.URL.Path)
			writeServiceError(w, errors.ErrInvalidAPIKey)
			return
		}

		next.ServeHTTP(w, r.WithContext(logging.ContextWithCaller(r.Context(), caller)))
	})
}

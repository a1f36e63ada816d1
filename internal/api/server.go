// Package api serves the inventory over HTTP: a JSON query endpoint, an
// HTML table, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/daemon"
	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/internal/query"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Querier answers inventory requests.
type Querier interface {
	Query(ctx context.Context, req query.Request) (inventory.View, error)
}

// Catalog lists the configured scan matrix.
type Catalog interface {
	Regions() []string
	Kinds() []resource.Kind
}

// HealthReporter reports daemon health.
type HealthReporter interface {
	Health() daemon.HealthStatus
}

// Server routes HTTP requests to the query facade.
type Server struct {
	querier Querier
	catalog Catalog
	health  HealthReporter
	metrics http.Handler
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithHealth sets the health source for /healthz.
func WithHealth(h HealthReporter) Option {
	return func(s *Server) { s.health = h }
}

// WithCatalog lists regions and kinds on the dashboard.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithMetricsHandler replaces the default promhttp handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer builds the router.
func NewServer(q Querier, opts ...Option) *Server {
	s := &Server{
		querier: q,
		metrics: promhttp.Handler(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /resources", s.handleResources)
	s.mux.HandleFunc("GET /all-table", s.handleTable)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics)
	return s
}

// Handler returns the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// APIError is the JSON error body.
type APIError struct {
	Message    string `json:"error"`
	Code       string `json:"code"`
	StatusCode int    `json:"status_code"`
	Timestamp  int64  `json:"timestamp"`
}

// ResourcesResponse is the /resources body.
type ResourcesResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	Complete  bool               `json:"complete"`
	Count     int                `json:"count"`
	Records   []resource.Record  `json:"records"`
	Failures  []resource.Failure `json:"failures"`
}

type dashboardData struct {
	Regions []string
	Kinds   []resource.Kind
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var data dashboardData
	if s.catalog != nil {
		data.Regions = s.catalog.Regions()
		data.Kinds = s.catalog.Kinds()
	}
	if err := dashboardTmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("render dashboard")
	}
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.querier.Query(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ResourcesResponse{
		Timestamp: view.Timestamp,
		Complete:  view.Complete,
		Count:     len(view.Records),
		Records:   view.Records,
		Failures:  view.Failures,
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.querier.Query(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tableTmpl.Execute(w, newTablePage(view)); err != nil {
		log.Error().Err(err).Msg("render table")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, daemon.HealthStatus{Status: daemon.StatusHealthy})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Health())
}

// parseRequest reads region, service and refresh from the query string.
func parseRequest(r *http.Request) (query.Request, error) {
	q := r.URL.Query()
	req := query.Request{Region: strings.TrimSpace(q.Get("region"))}

	if svc := q.Get("service"); svc != "" {
		kind, err := resource.ParseKind(svc)
		if err != nil {
			return query.Request{}, err
		}
		req.Kind = kind
	}

	if raw := q.Get("refresh"); raw != "" {
		fresh, err := strconv.ParseBool(raw)
		if err != nil {
			return query.Request{}, resource.Configurationf("invalid refresh value %q", raw)
		}
		req.Fresh = fresh
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// writeError maps configuration errors to 400 and everything else to 500.
// Internal details are logged, not returned.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := string(resource.ErrKindInternal)
	msg := "internal error"

	switch {
	case resource.IsConfiguration(err):
		status = http.StatusBadRequest
		code = string(resource.ErrKindConfiguration)
		msg = resource.AsError(err).Message()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		code = string(resource.ErrKindTimeout)
		msg = "request cancelled"
	default:
		log.Error().Err(err).Msg("query failed")
	}

	writeJSON(w, status, APIError{
		Message:    msg,
		Code:       code,
		StatusCode: status,
		Timestamp:  time.Now().Unix(),
	})
}

// statusRecorder captures the status code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := log.Debug()
		if rec.status >= 400 {
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

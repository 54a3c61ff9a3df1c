// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/pkg/aggregate"
	"github.com/okian/pulse/pkg/model"
)

// Default server configuration constants.
const (
	DefaultAPIEndpoint  = "/api/metrics"
	DefaultMaxBodyBytes = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest stores one received record and returns it as stored.
	Ingest(ctx context.Context, rec model.MetricEvent) (model.MetricEvent, error)

	// Read operations expose stored records.
	Query(ctx context.Context, f repository.Filter) ([]model.MetricEvent, error)
	Summary(ctx context.Context, f repository.Filter, latestOnly bool) (aggregate.Report, error)

	// Location resolves date-only query parameters.
	Location() *time.Location
}

// Server wires HTTP routes for the business API.
type Server struct {
	apiEndpoint string

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	metricsHandler   *MetricsHandler
	dashboardHandler *dashboardHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	apiEndpoint  string
	maxBodyBytes int64
}

// WithAPIEndpoint sets the ingestion and query path.
func WithAPIEndpoint(endpoint string) ServerOption {
	return func(c *serverConfig) {
		if strings.HasPrefix(endpoint, "/") {
			c.apiEndpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithMaxBodyBytes caps ingested payloads.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{apiEndpoint: DefaultAPIEndpoint, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		apiEndpoint:      cfg.apiEndpoint,
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		metricsHandler:   NewMetricsHandler(deps, cfg.maxBodyBytes),
		dashboardHandler: newDashboardHandler(cfg.apiEndpoint),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc(s.apiEndpoint, MetricsMiddleware(s.metricsHandler.HandleMetrics, "metrics"))
	mux.HandleFunc(s.apiEndpoint+"/summary", MetricsMiddleware(s.metricsHandler.HandleSummary, "summary"))
}

// APIEndpoint returns the registered ingestion and query path.
func (s *Server) APIEndpoint() string { return s.apiEndpoint }

type ackResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

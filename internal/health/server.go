package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/infra/client"
	"github.com/vietddude/storeguard/internal/infra/client/limiter"
)

// StatsSource supplies the orchestrator snapshot.
type StatsSource interface {
	Stats() client.Stats
}

// LimitSource reports limiter state without consuming it. *client.Client
// implements it.
type LimitSource interface {
	RateLimit(key string) limiter.Result
}

// EventSource supplies recently emitted events.
type EventSource interface {
	Recent() []domain.Event
}

// Authorizer answers capability queries.
type Authorizer interface {
	Capabilities(role domain.Role) map[string]bool
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	stats         StatsSource
	events        EventSource
	auth          Authorizer
	queueCapacity int
	server        *http.Server
}

// NewServer creates a new health server. events and auth may be nil.
func NewServer(stats StatsSource, events EventSource, auth Authorizer, queueCapacity, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		stats:         stats,
		events:        events,
		auth:          auth,
		queueCapacity: queueCapacity,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/capabilities", s.handleCapabilities)
	mux.HandleFunc("/limits", s.handleLimits)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Report builds the current health report.
func (s *Server) Report() Report {
	stats := s.stats.Stats()
	status, reasons := Evaluate(stats, s.queueCapacity)
	return Report{
		SystemStatus:  status,
		Reasons:       reasons,
		Stats:         stats,
		QueueCapacity: s.queueCapacity,
		CheckedAt:     time.Now(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.Report()

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Report())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := []domain.Event{}
	if s.events != nil {
		events = s.events.Recent()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "permissions not configured", http.StatusNotFound)
		return
	}
	role := r.URL.Query().Get("role")
	if role == "" {
		http.Error(w, "role is required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.auth.Capabilities(domain.Role(role)))
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	limits, ok := s.stats.(LimitSource)
	if !ok {
		http.Error(w, "limiter not available", http.StatusNotFound)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(limits.RateLimit(key))
}

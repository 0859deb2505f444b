// Package http exposes the engine as a JSON and server-sent events API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// DefaultPingInterval is how often streams send a keepalive.
const DefaultPingInterval = 15 * time.Second

// Engine is the part of socrates.Engine the server drives.
type Engine interface {
	Research(ctx context.Context, req socrates.Request, obs ...domain.Observer) (*socrates.Result, error)
	Refine(ctx context.Context, req socrates.Request, obs ...domain.Observer) (*socrates.Result, error)
}

// Server holds the handlers.
type Server struct {
	engine       Engine
	sink         ports.Sink
	streams      *StreamManager
	models       []string
	providers    []string
	gatherer     prometheus.Gatherer
	corsOrigins  []string
	pingInterval time.Duration
	logger       *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistory serves records from sink under /api/history.
func WithHistory(sink ports.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithModels sets what /api/models reports.
func WithModels(models, providers []string) Option {
	return func(s *Server) {
		s.models = models
		s.providers = providers
	}
}

// WithMetrics serves g under /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithCORSOrigins restricts cross-origin access. The default allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewServer creates the server. Every run it starts is broadcast to
// /api/events subscribers.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:       engine,
		streams:      NewStreamManager(),
		pingInterval: DefaultPingInterval,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// Streams returns the run event fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.cors)
	r.Use(s.validateRequests)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.getHealth)
		r.Get("/models", s.listModels)
		r.Post("/research", s.research)
		r.Post("/research/stream", s.researchStream)
		r.Post("/refine", s.refine)
		r.Get("/events", s.subscribeEvents)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.listHistory)
			r.Get("/{name}", s.getHistory)
			r.Delete("/{name}", s.deleteHistory)
		})
	})
	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 {
			origin = ""
			reqOrigin := r.Header.Get("Origin")
			for _, o := range s.corsOrigins {
				if o == reqOrigin || o == "*" {
					origin = reqOrigin
					break
				}
			}
			w.Header().Add("Vary", "Origin")
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type researchBody struct {
	Query         string `json:"query"`
	Depth         string `json:"depth"`
	MaxIterations int    `json:"max_iterations"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	RunID         string `json:"run_id"`
}

type refineBody struct {
	Task          string `json:"task"`
	MaxIterations int    `json:"max_iterations"`
	UseTools      bool   `json:"use_tools"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	RunID         string `json:"run_id"`
}

// RunResponse is the JSON form of a finished or partial run.
type RunResponse struct {
	RunID        string                `json:"run_id"`
	Mode         domain.Mode           `json:"mode"`
	Status       domain.Status         `json:"status"`
	Output       string                `json:"output"`
	Iterations   int                   `json:"iterations"`
	QueryType    string                `json:"query_type,omitempty"`
	Depth        string                `json:"depth,omitempty"`
	SubQuestions []string              `json:"sub_questions,omitempty"`
	Sources      []domain.SearchResult `json:"sources,omitempty"`
	Record       *domain.RecordRef     `json:"record,omitempty"`
	Provider     string                `json:"provider,omitempty"`
	Model        string                `json:"model,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	Error        string                `json:"error,omitempty"`
}

func newRunResponse(res *socrates.Result, runErr error) RunResponse {
	out := RunResponse{
		RunID:    res.RunID,
		Output:   res.Output,
		Record:   res.Record,
		Provider: res.Provider,
		Model:    res.Model,
	}
	if st := res.State; st != nil {
		out.Mode = st.Mode
		out.Status = st.Status
		out.Iterations = st.Iteration
		out.QueryType = st.QueryType
		out.Depth = st.Depth
		out.SubQuestions = st.PendingItems
		out.Sources = domain.UniqueSources(st.Results, 0)
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	return out
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": socrates.Version,
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"models":    nonNil(s.models),
		"providers": nonNil(s.providers),
	})
}

func (s *Server) decodeResearch(w http.ResponseWriter, r *http.Request) (socrates.Request, bool) {
	var body researchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return socrates.Request{}, false
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return socrates.Request{}, false
	}
	runID := body.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return socrates.Request{
		Task:          body.Query,
		Depth:         body.Depth,
		MaxIterations: body.MaxIterations,
		Provider:      body.Provider,
		Model:         body.Model,
		RunID:         runID,
	}, true
}

func (s *Server) research(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeResearch(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Research(r.Context(), req, s.streams)
	s.writeRun(w, res, err)
}

func (s *Server) refine(w http.ResponseWriter, r *http.Request) {
	var body refineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := socrates.Request{
		Task:          body.Task,
		MaxIterations: body.MaxIterations,
		UseTools:      body.UseTools,
		Provider:      body.Provider,
		Model:         body.Model,
		RunID:         body.RunID,
	}
	res, err := s.engine.Refine(r.Context(), req, s.streams)
	s.writeRun(w, res, err)
}

// writeRun answers with the run, partial or not. Requests that never
// started a run are client or server errors.
func (s *Server) writeRun(w http.ResponseWriter, res *socrates.Result, err error) {
	switch {
	case errors.Is(err, socrates.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case res == nil:
		s.logger.Error("run could not start", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("run failed: %v", err))
	default:
		if err != nil {
			s.logger.Warn("run stopped early", "run_id", res.RunID, "error", err)
		}
		writeJSON(w, http.StatusOK, newRunResponse(res, err))
	}
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeJSON(w, http.StatusOK, []domain.RecordSummary{})
		return
	}

	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid parameter limit: %v", err))
		return
	}
	var mode string
	if err := runtime.BindQueryParameter("form", true, false, "mode", r.URL.Query(), &mode); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid parameter mode: %v", err))
		return
	}

	all, err := s.sink.List(r.Context())
	if err != nil {
		s.logger.Error("history list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	out := make([]domain.RecordSummary, 0, len(all))
	for _, rec := range all {
		if mode != "" && string(rec.Mode) != mode {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	rec, err := s.sink.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	if err := s.sink.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.historyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.logger.Error("history request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "history unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

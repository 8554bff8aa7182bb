package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/gateway"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
)

// Completer serves completion requests.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.CompletionResult, error)
}

// BudgetReader exposes current spend.
type BudgetReader interface {
	Snapshot() tracker.BudgetState
}

// QuotaReader exposes remaining rate-limit capacity per provider.
type QuotaReader interface {
	Remaining(provider string) int
}

// AttemptReader answers attempt history queries.
type AttemptReader interface {
	Query(ctx context.Context, filter tracker.AttemptFilter) ([]tracker.RoutingAttempt, error)
	Report(ctx context.Context, filter tracker.AttemptFilter) (*tracker.AttemptSummary, error)
}

// Options wires the server to the gateway components.
type Options struct {
	Gateway     Completer
	Registry    *providers.Registry
	Budget      BudgetReader
	Limiter     QuotaReader
	Attempts    AttemptReader
	CORSOrigins []string
	MaxBodySize int64
}

// Server exposes the gateway over HTTP.
type Server struct {
	opts     Options
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates an API server.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	s := &Server{
		opts:     opts,
		router:   chi.NewRouter(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/completions", s.handleComplete)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)
		r.Get("/budget", s.handleBudget)
		r.Get("/attempts", s.handleAttempts)
		r.Get("/summary", s.handleSummary)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string                  `json:"error"`
	Reasons []gateway.AttemptReason `json:"reasons,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, reasons []gateway.AttemptReason) {
	writeJSON(w, status, errorResponse{Error: msg, Reasons: reasons})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package api is the HTTP boundary: it validates requests, turns them into
// events and returns the dispatcher's acknowledgment.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
	"github.com/efebarandurmaz/pdfrag/internal/server"
	"github.com/efebarandurmaz/pdfrag/internal/temporal"
)

// maxBodyBytes bounds request bodies; requests only carry a path or a
// question.
const maxBodyBytes = 1 << 20

// Dispatcher sends events and fetches run results.
type Dispatcher interface {
	Send(ctx context.Context, ev rag.Event) (rag.SendResult, error)
	Result(ctx context.Context, id string, out any) error
}

// Config holds API server configuration.
type Config struct {
	ListenAddr string        // e.g. ":8000"
	RunTimeout time.Duration // upper bound for GET /runs/{id}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8000", RunTimeout: 5 * time.Minute}
}

// Option customizes a Server.
type Option func(*Server)

// WithCatalog enables GET /collections/{name}/sources.
func WithCatalog(c catalog.Repository) Option {
	return func(s *Server) { s.catalog = c }
}

// WithHealth mounts the health endpoints.
func WithHealth(h *server.HealthServer) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics serves h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHandler mounts an extra handler, e.g. the MCP endpoint.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) { s.extra = append(s.extra, route{pattern, h}) }
}

type route struct {
	pattern string
	handler http.Handler
}

// Server is the pdfrag HTTP API.
type Server struct {
	config  *Config
	events  Dispatcher
	catalog catalog.Repository
	health  *server.HealthServer
	metrics http.Handler
	extra   []route
	handler http.Handler
	server  *http.Server
}

// NewServer creates the API server.
func NewServer(config *Config, events Dispatcher, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{config: config, events: events}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /ingest-pdf", s.handleIngest)
	mux.HandleFunc("POST /query-pdf-ai", s.handleQuery)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /collections/{name}/sources", s.handleSources)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.health != nil {
		s.health.Mount(mux)
	}
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.handler)
	}

	s.handler = loggingMiddleware(mux)
	s.server = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	slog.Info("Starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// handleIngest handles PATCH /ingest-pdf.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req rag.IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ack, err := s.events.Send(r.Context(), rag.Event{Name: rag.EventIngestPDF, Data: req.Payload()})
	if err != nil {
		slog.Error("ingest dispatch failed", "pdf_path", req.PDFPath, "error", err)
		respondDetail(w, http.StatusInternalServerError, "Error ingesting PDF: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ack)
}

// handleQuery handles POST /query-pdf-ai.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ack, err := s.events.Send(r.Context(), rag.Event{Name: rag.EventQueryPDFAI, Data: req.Payload()})
	if err != nil {
		slog.Error("query dispatch failed", "error", err)
		respondDetail(w, http.StatusInternalServerError, "Error querying PDF AI: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ack)
}

// handleRun handles GET /runs/{id}: it waits for the run and returns its
// result as stored by the workflow.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx := r.Context()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	var raw json.RawMessage
	err := s.events.Result(ctx, id, &raw)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(raw)
	case errors.Is(err, temporal.ErrRunNotFound):
		respondDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		respondDetail(w, http.StatusGatewayTimeout, "run "+id+" did not finish in time")
	default:
		respondDetail(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSources handles GET /collections/{name}/sources.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondDetail(w, http.StatusNotImplemented, "no catalog configured")
		return
	}

	records, err := s.catalog.ListSources(r.Context(), r.PathValue("name"))
	if err != nil {
		slog.Error("listing sources failed", "collection", r.PathValue("name"), "error", err)
		respondDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []rag.SourceRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// respondDetail writes an error body of the form {"detail": "..."}.
func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers such as MCP working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemarag/internal/domain"
	"schemarag/internal/index"
	"schemarag/internal/retriever"
	"schemarag/internal/service"
	"schemarag/internal/store"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	DefaultTopK  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server exposes retrieval over HTTP.
type Server struct {
	svc     *service.SchemaService
	cfg     Config
	logger  *slog.Logger
	router  *mux.Router
	metrics *metrics
}

type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rebuildsTotal   *prometheus.CounterVec
}

func newMetrics(holder *index.Holder) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemarag_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "schemarag_request_duration_seconds",
				Help: "Duration of API requests",
			},
			[]string{"method", "endpoint"},
		),
		rebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemarag_index_rebuilds_total",
				Help: "Index rebuilds by outcome",
			},
			[]string{"outcome"},
		),
	}
	indexed := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "schemarag_indexed_chunks",
			Help: "Number of chunks in the published index",
		},
		func() float64 {
			idx, err := holder.Current()
			if err != nil {
				return 0
			}
			return float64(idx.Len())
		},
	)
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.rebuildsTotal, indexed)
	return m
}

// New builds the router.
func New(svc *service.SchemaService, cfg Config) *Server {
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger, router: mux.NewRouter(), metrics: newMetrics(svc.Holder())}

	s.router.Use(s.instrument)
	s.router.HandleFunc("/query", s.handleQuery).Methods("POST")
	s.router.HandleFunc("/reindex", s.handleReindex).Methods("POST")
	s.router.HandleFunc("/chunks/{id}", s.handleChunk).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		s.metrics.requestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Prompt string `json:"prompt"`
	TopK   *int   `json:"top_k,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing prompt")
		return
	}
	topK := s.cfg.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	ans, err := s.svc.Ask(r.Context(), req.Prompt, topK)
	if err != nil {
		s.logger.Warn("query failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

type failureResponse struct {
	ChunkID string `json:"chunk_id"`
	Error   string `json:"error"`
}

type reindexResponse struct {
	Indexed  int               `json:"indexed"`
	Failures []failureResponse `json:"failures"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.BuildIndex(r.Context(), nil)
	if err != nil {
		outcome := "error"
		if errors.Is(err, index.ErrBuildInProgress) {
			outcome = "conflict"
		}
		s.metrics.rebuildsTotal.WithLabelValues(outcome).Inc()
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.metrics.rebuildsTotal.WithLabelValues("ok").Inc()
	resp := reindexResponse{Indexed: report.Indexed, Failures: []failureResponse{}}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, failureResponse{ChunkID: f.ChunkID, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type chunkResponse struct {
	ID            string                `json:"id"`
	Summary       string                `json:"summary"`
	Nodes         []domain.SchemaNode   `json:"nodes"`
	Relationships []domain.Relationship `json:"relationships"`
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, sm, err := s.svc.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chunkResponse{ID: c.ID, Summary: sm.Text, Nodes: c.Nodes, Relationships: c.Relationships})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	holder := s.svc.Holder()
	resp := map[string]any{"status": "healthy", "index": holder.State().String(), "chunks": 0}
	if idx, err := holder.Current(); err == nil {
		resp["chunks"] = idx.Len()
		resp["model"] = idx.Model()
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, retriever.ErrInvalidTopK):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, index.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, index.ErrBuildInProgress):
		return http.StatusConflict
	case errors.Is(err, retriever.ErrModelMismatch), errors.Is(err, index.ErrDimensionMismatch):
		// the embedder and the index disagree; a rebuild with the configured embedder resolves it
		return http.StatusConflict
	case errors.Is(err, retriever.ErrQueryEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

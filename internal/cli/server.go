package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/strand/internal/presentation/graph"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
)

// shutdownTimeout bounds the graceful shutdown of the ops server.
const shutdownTimeout = 5 * time.Second

// Server exposes read-only operational endpoints: metrics, health, thread
// inspection and graph diagrams. It never executes graphs.
type Server struct {
	Store    ports.CheckpointStore
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewHandler creates the HTTP handler for the ops server.
func NewHandler(s *Server) http.Handler {
	if s.Gatherer == nil {
		s.Gatherer = prometheus.DefaultGatherer
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/graphs/{name}", s.GetGraph)
	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Get("/{id}", s.GetThread)
		r.Get("/{id}/history", s.GetHistory)
	})
	return r
}

// Health handles GET /healthz. It checks the store is reachable.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.List(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("store error: %v", err), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Store.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		return
	}
	if threads == nil {
		threads = []string{}
	}
	s.writeJSON(w, threads)
}

// GetThread handles GET /threads/{id} with the latest checkpoint.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cp, err := s.Store.Latest(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, cp)
}

// GetHistory handles GET /threads/{id}/history, newest first.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history := []*domain.Checkpoint{}
	for cp, err := range s.Store.History(r.Context(), id) {
		if err != nil {
			s.storeError(w, err)
			return
		}
		history = append(history, cp)
	}
	if len(history) == 0 {
		http.Error(w, domain.ErrThreadNotFound.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, history)
}

// GetGraph handles GET /graphs/{name} with the Mermaid diagram of a demo graph.
// The optional thread query parameter overlays that thread's progress.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	demo, err := LookupDemo(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	g, err := demo.Build(&ScriptedModel{}, nil).Compile()
	if err != nil {
		http.Error(w, fmt.Sprintf("Compile error: %v", err), http.StatusInternalServerError)
		return
	}

	var overlay *graph.GraphOverlay
	if thread := r.URL.Query().Get("thread"); thread != "" {
		overlay, err = threadOverlay(r.Context(), s.Store, thread)
		if err != nil {
			s.storeError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := fmt.Fprint(w, graph.GenerateMermaid(g, overlay)); err != nil {
		s.Logger.Warn("failed to write graph", "err", err)
	}
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrThreadNotFound) || errors.Is(err, domain.ErrCheckpointNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, fmt.Sprintf("store error: %v", err), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("failed to encode response", "err", err)
	}
}

// ListenAndServe runs handler on addr until ctx is done, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("ops server stopped")
	return nil
}

// ServeOptions configures the serve command.
type ServeOptions struct {
	ConfigPath string
	// Addr overrides serve.addr from the configuration.
	Addr  string
	Debug bool
}

// Serve runs the ops server against the configured store until ctx is done.
func Serve(ctx context.Context, opts ServeOptions) error {
	p, cfg, logger, err := open(ctx, opts.ConfigPath, opts.Debug)
	if err != nil {
		return err
	}
	defer p.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "strand",
			Name:      "threads",
			Help:      "Number of threads in the checkpoint store.",
		}, func() float64 {
			threads, err := p.Store.List(context.Background())
			if err != nil {
				logger.Warn("failed to count threads", "err", err)
				return 0
			}
			return float64(len(threads))
		}),
	)

	addr := cfg.Serve.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	printSystemMessage(os.Stdout, "Serving /metrics, /healthz and /threads on %s", addr)
	return ListenAndServe(ctx, addr, NewHandler(&Server{Store: p.Store, Gatherer: reg, Logger: logger}), logger)
}

// Package adminserver exposes the operator-facing HTTP surface: health,
// Prometheus metrics, a JSON/text cache snapshot, a clear endpoint, and
// a WebSocket feed of eviction/leak events.
package adminserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oskarlin/rxcache/internal/adminserver/apierror"
	"github.com/oskarlin/rxcache/internal/adminserver/httpmw"
	"github.com/oskarlin/rxcache/internal/adminserver/wsevents"
	"github.com/oskarlin/rxcache/internal/rxcache"
	"github.com/oskarlin/rxcache/internal/rxconfig"
)

// Server is the admin HTTP surface over a CacheManager.
type Server struct {
	cfg     rxconfig.AdminServerConfig
	manager *rxcache.CacheManager
	logger  *slog.Logger
	events  *wsevents.Hub

	httpServer *http.Server
	baseCtx    context.Context
}

// New builds a Server. It does not start listening until Start is called.
func New(cfg rxconfig.AdminServerConfig, manager *rxcache.CacheManager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		logger:  logger,
		events:  wsevents.NewHub(logger.With("component", "ws_events")),
		baseCtx: context.Background(),
	}
}

// Events returns the WebSocket hub so the eviction loop (or any other
// component) can publish onto it.
func (s *Server) Events() *wsevents.Hub {
	return s.events
}

// Start runs the WebSocket hub and the HTTP listener in background
// goroutines, returning immediately. Errors from ListenAndServe other
// than http.ErrServerClosed are logged, not returned, matching the
// fire-and-forget shape the rest of the stack uses for background loops.
func (s *Server) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.baseCtx = ctx
	go s.events.Start(ctx)

	router := s.routes()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server stopped unexpectedly", "error", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(httpmw.SecureHeaders())
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/cache/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/cache/clear", s.handleClear).Methods(http.MethodPost)
	router.HandleFunc("/ws/events", s.events.ServeHTTP).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	return router
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, apierror.NotFound(r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apierror.Write(w, apierror.Validation("method "+r.Method+" not allowed on "+r.URL.Path))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(snap.Metrics.Text()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	// Uses the server's own long-lived base context, not the request's:
	// ClearAll may restart the eviction loop, and a loop tied to a
	// request context would die the instant this handler returns.
	patternCleared, resultCleared, deferredCleared := s.manager.ClearAll(s.baseCtx)

	s.events.Publish("cache_cleared", map[string]int{
		"pattern_cleared":  patternCleared,
		"result_cleared":   resultCleared,
		"deferred_cleared": deferredCleared,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{
		"pattern_cleared":  patternCleared,
		"result_cleared":   resultCleared,
		"deferred_cleared": deferredCleared,
	})
}

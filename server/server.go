// Package server exposes the draft advisor over HTTP: synchronous scoring
// endpoints, a websocket that streams search progress, and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brensch/brawldraft/heuristics"
	"github.com/brensch/brawldraft/mcts"
)

// Stats is the statistics the server scores against, plus the roster drafts
// are built over.
type Stats interface {
	heuristics.Stats
	Brawlers() []string
}

type Server struct {
	stats    Stats
	engine   *mcts.Engine
	weights  heuristics.Weights
	results  int
	log      *zap.SugaredLogger
	gatherer prometheus.Gatherer
	requests *prometheus.HistogramVec
}

// New wires a server. reg receives the HTTP metrics and gatherer backs
// /metrics; both may be the same *prometheus.Registry.
func New(st Stats, engine *mcts.Engine, weights heuristics.Weights, log *zap.SugaredLogger, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		stats:    st,
		engine:   engine,
		weights:  weights,
		results:  engine.Config().ResultCount,
		log:      log,
		gatherer: gatherer,
		requests: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brawldraft_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/legal-moves", s.handleLegalMoves)
		r.Post("/suggest-pick", s.handleSuggestPick)
		r.Post("/suggest-bans", s.handleSuggestBans)
		r.Post("/predict", s.handlePredict)
		r.Post("/pick", s.handlePick)
		r.Post("/ban", s.handleBan)
		r.Post("/unban", s.handleUnban)
		r.Post("/undo", s.handleUndo)
		r.Post("/search/stop", s.handleStopSearch)
	})
	r.Get("/ws/search", s.handleSearch)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and stops any running search.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	s.engine.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.engine.Wait()
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			// hijacked by the websocket upgrade
			status = http.StatusSwitchingProtocols
		}
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		s.log.Debugw("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Package dashboard serves the read-only HTTP view of the trading state.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/internal/metrics"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/publish"
)

const defaultLimit = 50

// History supplies recent closed trades and events, newest first.
type History interface {
	RecentTrades(ctx context.Context, n int64) ([]journal.TradeRecord, error)
	RecentEvents(ctx context.Context, n int64) ([]journal.Event, error)
}

// Config holds server configuration
type Config struct {
	Addr    string
	State   publish.StateSource
	History History // optional
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	state   publish.StateSource
	history History
	metrics *metrics.Metrics
	started time.Time
}

func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "dashboard").Logger(),
		state:   cfg.State,
		history: cfg.History,
		metrics: cfg.Metrics,
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/positions", s.handlePositions)
		r.Get("/trades", s.handleTrades)
		r.Get("/events", s.handleEvents)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("starting dashboard")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down dashboard")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.state.State(r.Context())
	if err != nil {
		s.stateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	st, err := s.state.State(r.Context())
	if err != nil {
		s.stateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Positions)
}

func (s *Server) stateError(w http.ResponseWriter, err error) {
	if errors.Is(err, publish.ErrNoState) {
		writeError(w, http.StatusServiceUnavailable, "no state published yet")
		return
	}
	s.log.Error().Err(err).Msg("read state")
	writeError(w, http.StatusBadGateway, "state unavailable")
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []journal.TradeRecord{})
		return
	}
	trades, err := s.history.RecentTrades(r.Context(), n)
	if err != nil {
		s.log.Error().Err(err).Msg("read trades")
		writeError(w, http.StatusBadGateway, "trades unavailable")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []journal.Event{})
		return
	}
	events, err := s.history.RecentEvents(r.Context(), n)
	if err != nil {
		s.log.Error().Err(err).Msg("read events")
		writeError(w, http.StatusBadGateway, "events unavailable")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func limit(w http.ResponseWriter, r *http.Request) (int64, bool) {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return defaultLimit, true
	}
	n, err := strconv.ParseInt(q, 10, 64)
	if err != nil || n <= 0 || n > 1000 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return 0, false
	}
	return n, true
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// JournalHistory adapts a journal.Reader, which lists oldest first.
type JournalHistory struct {
	Reader journal.Reader
}

func (h JournalHistory) RecentTrades(_ context.Context, n int64) ([]journal.TradeRecord, error) {
	trades, err := h.Reader.ListTradesClosedBetween(time.Time{}, time.Now().Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	if int64(len(trades)) > n {
		trades = trades[int64(len(trades))-n:]
	}
	trades = slices.Clone(trades)
	slices.Reverse(trades)
	return trades, nil
}

func (h JournalHistory) RecentEvents(_ context.Context, n int64) ([]journal.Event, error) {
	events, err := h.Reader.ListEvents(int(n))
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

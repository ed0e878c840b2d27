package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryptopulse/internal/metrics"
	"cryptopulse/internal/models"
	"cryptopulse/internal/realtime"
	"cryptopulse/internal/reconcile"
	"cryptopulse/internal/store"
	"cryptopulse/internal/view"
)

// Portfolio is the part of the portfolio service the API drives.
type Portfolio interface {
	State() reconcile.SystemState
	RefreshAll(ctx context.Context) error
	RefreshHoldings(ctx context.Context) error
}

type Options struct {
	// Store backs the holdings routes. A nil Store disables them.
	Store          store.Store
	Hub            *realtime.Hub
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	AllowedOrigins []string
	Log            zerolog.Logger
}

type Server struct {
	portfolio Portfolio
	store     store.Store
	hub       *realtime.Hub
	metrics   *metrics.Metrics
	router    *mux.Router
	handler   http.Handler
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewServer(p Portfolio, opts Options) *Server {
	server := &Server{
		portfolio: p,
		store:     opts.Store,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		log:       opts.Log.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if server.hub == nil {
		server.hub = realtime.NewHub(opts.Log, opts.Metrics)
	}

	r := mux.NewRouter()
	r.Use(server.requestMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/state", server.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/refresh", server.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/holdings", server.handleListHoldings).Methods(http.MethodGet)
	r.HandleFunc("/api/holdings/{symbol}", server.handleUpsertHolding).Methods(http.MethodPut)
	r.HandleFunc("/api/holdings/{symbol}", server.handleDeleteHolding).Methods(http.MethodDelete)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	server.router = r
	server.handler = cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(r)
	return server
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub state changes are published on.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.Render(s.portfolio.State()))
}

// handleRefresh refreshes both resources and answers with the resulting view.
// Fetch failures are part of the view, so the status is 200 either way.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.portfolio.RefreshAll(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("manual refresh failed")
	}
	writeJSON(w, http.StatusOK, view.Render(s.portfolio.State()))
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	if !s.holdingsEnabled(w) {
		return
	}
	holdings, err := s.store.ListHoldings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleUpsertHolding(w http.ResponseWriter, r *http.Request) {
	if !s.holdingsEnabled(w) {
		return
	}

	var req struct {
		Quantity  float64 `json:"quantity"`
		CostBasis float64 `json:"costBasis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := s.store.UpsertHolding(r.Context(), models.HoldingLot{
		Symbol:    strings.TrimSpace(mux.Vars(r)["symbol"]),
		Quantity:  req.Quantity,
		CostBasis: req.CostBasis,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidHolding) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.refreshHoldings(r.Context())
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	if !s.holdingsEnabled(w) {
		return
	}

	err := s.store.DeleteHolding(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "holding not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.refreshHoldings(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if _, err := s.hub.AddClient(conn, func() any { return view.Render(s.portfolio.State()) }); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.RemoveClient(conn)
			return
		}
	}
}

func (s *Server) holdingsEnabled(w http.ResponseWriter) bool {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "holdings source is read-only"})
		return false
	}
	return true
}

func (s *Server) refreshHoldings(ctx context.Context) {
	if err := s.portfolio.RefreshHoldings(ctx); err != nil {
		s.log.Warn().Err(err).Msg("holdings refresh after write failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package httpapi exposes a read-only dashboard query surface and a
// live-tick websocket hub over plain net/http, generalizing the donor's
// Hub/PriceThrottler/SimpleHealthCheck trio to the broader set of
// dashboard queries a standalone service needs.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/store"
	"github.com/sentineld/sentineld/internal/trading"
)

// AccountSource is the subset of PositionManager/VirtualAccount the
// dashboard needs to build account and position snapshots.
type AccountSource interface {
	State(now time.Time) model.AccountState
	Positions() map[string]*trading.Position
}

// TrackerSource reports the live symbol universe for systemStatus.
type TrackerSource interface {
	AllSymbols() []string
}

// Server serves the dashboard JSON API, websocket hub and health check.
type Server struct {
	mux     *http.ServeMux
	hub     *Hub
	account AccountSource
	tracker TrackerSource
	store   *store.Store
	log     zerolog.Logger
	start   time.Time
}

// New wires a Server against its collaborators and registers every
// route. store may be nil, in which case persistence-backed endpoints
// answer 503 Service Unavailable.
func New(account AccountSource, tracker TrackerSource, db *store.Store, log zerolog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		hub:     NewHub(),
		account: account,
		tracker: tracker,
		store:   db,
		log:     log,
		start:   time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.mux }

// Broadcast pushes a live ticker update to every connected websocket
// client.
func (s *Server) Broadcast(symbol string, price float64) {
	s.hub.Broadcast(TickerMessage{Type: "ticker", Symbol: symbol, Price: price})
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	s.mux.HandleFunc("/api/account", s.handleAccountSnapshot)
	s.mux.HandleFunc("/api/positions", s.handleOpenPositions)
	s.mux.HandleFunc("/api/trades", s.handleTrades)
	s.mux.HandleFunc("/api/trades/stats", s.handleTradeStatistics)
	s.mux.HandleFunc("/api/equity", s.handleEquityCurve)
	s.mux.HandleFunc("/api/features/stats", s.handleFeatureStatistics)
	s.mux.HandleFunc("/api/labels/stats", s.handleLabelStatistics)
	s.mux.HandleFunc("/api/alerts", s.handleAlerts)
	s.mux.HandleFunc("/api/status", s.handleSystemStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleAccountSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.account.State(time.Now()))
}

func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	all := s.account.Positions()
	out := make([]*trading.Position, 0, len(all))
	for _, p := range all {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	symbol := r.URL.Query().Get("symbol")
	since := parseSince(r)
	limit := parseLimit(r, 200)

	trades, err := s.store.Trades(symbol, since, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTradeStatistics(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	symbol := r.URL.Query().Get("symbol")
	since := parseSince(r)

	stats, err := s.store.TradeStatistics(symbol, since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEquityCurve(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	symbol := r.URL.Query().Get("symbol")
	since := parseSince(r)

	points, err := s.store.EquityCurve(symbol, since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleFeatureStatistics(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	stats, err := s.store.FeatureStatistics(parseSince(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLabelStatistics(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	stats, err := s.store.LabelStatistics(parseSince(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	alerts, err := s.store.Alerts(parseSince(r), parseLimit(r, 100))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	state := s.account.State(now)
	var tracked int
	if s.tracker != nil {
		tracked = len(s.tracker.AllSymbols())
	}
	var alertsLastHour int
	if s.store != nil {
		if alerts, err := s.store.Alerts(now.Add(-time.Hour), 0); err == nil {
			alertsLastHour = len(alerts)
		}
	}
	writeJSON(w, http.StatusOK, model.StatusSnapshot{
		TS:             now,
		Account:        state,
		OpenPositions:  len(s.account.Positions()),
		TrackedSymbols: tracked,
		AlertsLastHour: alertsLastHour,
		Uptime:         now.Sub(s.start),
	})
}

func parseSince(r *http.Request) time.Time {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}

func parseLimit(r *http.Request, fallback int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

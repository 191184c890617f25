// Package dashboard serves the read-only operations API: active positions,
// completed trades, per-day statistics, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"daytrader/internal/models"
	"daytrader/internal/store"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	positions *store.PositionRepo
	trades    *store.TradeRepo
	inactive  *store.InactiveRepo
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// Statistics summarizes one market day of completed trades plus the book
// that is still open.
type Statistics struct {
	Date          string  `json:"date"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AveragePnL    float64 `json:"average_pnl"`
	CurrentOpen   int     `json:"current_open"`
}

// PositionView is the wire shape for one active position.
type PositionView struct {
	Ticker        string    `json:"ticker"`
	Indicator     string    `json:"indicator"`
	Direction     string    `json:"direction"`
	EntryPrice    float64   `json:"entry_price"`
	EntryTime     time.Time `json:"entry_time"`
	PeakPrice     float64   `json:"peak_price"`
	PeakProfitPct float64   `json:"peak_profit_pct"`
	EntryReason   string    `json:"entry_reason"`
}

func NewServer(cfg Config, positions *store.PositionRepo, trades *store.TradeRepo, inactive *store.InactiveRepo, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		positions: positions,
		trades:    trades,
		inactive:  inactive,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/trades", s.handleGetTrades)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/api/inactive/{ticker}", s.handleGetInactive)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.positions.ListActive(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("listing active positions failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		views = append(views, positionView(&positions[i]))
	}
	s.writeJSON(w, views)
}

// handleGetTrades returns completed trades for ?date=yyyy-mm-dd, defaulting
// to the current market day.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = models.TradeDate(time.Now())
	}
	trades, err := s.trades.ListByDate(r.Context(), date)
	if err != nil {
		s.logger.WithError(err).WithField("date", date).Error("listing trades failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.CompletedTrade{}
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = models.TradeDate(time.Now())
	}
	stats, err := s.calculateStatistics(r.Context(), date)
	if err != nil {
		s.logger.WithError(err).Error("calculating statistics failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleGetInactive(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	recs, err := s.inactive.ListByTicker(r.Context(), ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Error("listing rejections failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []models.InactiveTickerRecord{}
	}
	s.writeJSON(w, recs)
}

func (s *Server) calculateStatistics(ctx context.Context, date string) (*Statistics, error) {
	trades, err := s.trades.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Date: date, CurrentOpen: len(positions)}
	for _, t := range trades {
		stats.TotalTrades++
		if t.ProfitLoss > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		stats.TotalPnL += t.ProfitLoss
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
		stats.AveragePnL = stats.TotalPnL / float64(stats.TotalTrades)
	}
	return stats, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response failed")
	}
}

func positionView(p *models.Position) PositionView {
	return PositionView{
		Ticker:        p.Ticker,
		Indicator:     p.Indicator,
		Direction:     string(p.Direction),
		EntryPrice:    p.EntryPrice,
		EntryTime:     p.EntryTime,
		PeakPrice:     p.PeakPrice,
		PeakProfitPct: p.PeakProfitPct,
		EntryReason:   p.EntryReason,
	}
}

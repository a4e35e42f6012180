// Package server exposes the slot market over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/server/handler"
	"github.com/adcal/slotmarket/internal/server/middleware"
	"github.com/adcal/slotmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimiter is optional; when nil, no rate limiting is applied.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Slots    *handler.SlotHandler
	Sales    *handler.SaleHandler
	Accounts *handler.AccountHandler
}

// Server is the headless HTTP + WebSocket API server for the slot market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, signature auth, rate limiting) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Slot reads; the literal /today pattern takes precedence over {day}.
	mux.HandleFunc("GET /api/slots", handlers.Slots.ListSlots)
	mux.HandleFunc("GET /api/slots/today", handlers.Slots.GetToday)
	mux.HandleFunc("GET /api/slots/{day}", handlers.Slots.GetSlot)
	mux.HandleFunc("GET /api/slots/{day}/owner", handlers.Slots.GetOwner)

	// Slot mutations; the signature middleware supplies the caller.
	mux.HandleFunc("PUT /api/slots/{day}/owner", handlers.Slots.SetOwner)
	mux.HandleFunc("PUT /api/slots/{day}/content", handlers.Slots.SetContent)
	mux.HandleFunc("PUT /api/slots/{day}/ask", handlers.Slots.SetAskPrice)
	mux.HandleFunc("POST /api/slots/{day}/buy", handlers.Slots.BuyFromAsk)
	mux.HandleFunc("POST /api/slots/{day}/bids", handlers.Slots.PlaceBid)
	mux.HandleFunc("POST /api/slots/{day}/accept", handlers.Slots.SellToBid)

	// Sale history.
	mux.HandleFunc("GET /api/slots/{day}/sales", handlers.Sales.ListByDay)
	mux.HandleFunc("GET /api/sales", handlers.Sales.ListRecent)

	// Account balances.
	mux.HandleFunc("GET /api/accounts/{address}/balance", handlers.Accounts.GetBalance)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware wraps inside-out: CORS and logging see every request,
	// signature auth runs last so rejected requests still get logged.
	var h http.Handler = mux

	h = middleware.SignatureAuth()(h)

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		logger: logger,
	}
}

// Start serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

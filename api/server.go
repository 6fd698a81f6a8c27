// Package api is the operator-facing HTTP surface: account and instrument
// management, manual buy/sell, mode control, trade history, and the websocket
// event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/optrade/broadcast"
	"github.com/rustyeddy/optrade/engine"
	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/positions"
	"github.com/rustyeddy/optrade/registry"
)

// Subscriber is the slice of the price feed the API needs: requesting streams
// for newly selected instruments. It is nil when the feed is disabled.
type Subscriber interface {
	Subscribe(tokens ...market.Token) error
	Resubscribe() (int, error)
}

// Config wires a Server with its collaborators.
type Config struct {
	Addr     string
	Engine   *engine.Engine
	Accounts *registry.Accounts
	Selected *registry.Selection
	Settings *registry.Settings
	Catalog  *market.Catalog
	Ticks    *market.LTPStore
	Book     *positions.Store
	Journal  journal.Journal
	Hub      *broadcast.Hub
	Feed     Subscriber
	Logger   *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Server
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger.With("module", "api")}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())
	s.routes(router)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/accounts", s.listAccounts)
	r.POST("/accounts", s.addAccount)
	r.POST("/accounts/update", s.replaceAccounts)

	r.GET("/instruments/search", s.searchInstruments)
	r.POST("/instruments/select", s.selectInstrument)
	r.GET("/instruments/selected", s.listSelected)
	r.POST("/instruments/update", s.replaceSelected)
	r.POST("/instruments/resubscribe", s.resubscribe)

	r.POST("/buy", s.buy)
	r.POST("/sell", s.sell)

	r.GET("/mode", s.getMode)
	r.POST("/mode", s.setMode)

	r.GET("/ltp", s.snapshot)
	r.GET("/trades", s.listTrades)
	r.GET("/ws", s.serveWS)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		s.logger.Debug("request",
			"method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

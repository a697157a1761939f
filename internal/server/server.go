package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbay/nftmarket/internal/feed"
	"github.com/apexbay/nftmarket/internal/journal"
	"github.com/apexbay/nftmarket/internal/ledger"
)

// Config controls the HTTP listener.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the HTTP front end over the ledger, feed, and journal.
type Server struct {
	cfg    Config
	logger *slog.Logger

	ledger  ledger.Ledger
	hub     *feed.Hub
	journal *journal.Writer

	engine  *gin.Engine
	httpSrv *http.Server
	started time.Time
}

// New creates a server with its routes registered. The journal writer
// may be nil when the daemon runs without a database.
func New(cfg Config, led ledger.Ledger, hub *feed.Hub, jw *journal.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		ledger:  led,
		hub:     hub,
		journal: jw,
		engine:  engine,
		started: time.Now(),
	}

	engine.Use(s.requestLogger(), gin.Recovery())
	s.routes()

	return s
}

// routes registers all endpoints.
func (s *Server) routes() {
	api := s.engine.Group("/api/v1")
	{
		api.POST("/listings", s.handleListItem)
		api.GET("/listings/:collection/:token_id", s.handleGetListing)
		api.PATCH("/listings/:collection/:token_id", s.handleUpdatePrice)
		api.DELETE("/listings/:collection/:token_id", s.handleCancelListing)
		api.POST("/listings/:collection/:token_id/buy", s.handleBuyItem)
		api.GET("/proceeds/:address", s.handleGetProceeds)
		api.POST("/proceeds/withdraw", s.handleWithdraw)
	}

	if s.hub != nil {
		s.engine.GET("/ws", gin.WrapF(s.hub.ServeWS))
	}
	s.engine.GET("/healthz", s.handleHealth)
}

// Start runs the listener and blocks until shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the handler for tests.
func (s *Server) Router() http.Handler {
	return s.engine
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}

// Package server exposes health and Prometheus metrics over HTTP next to the
// Socket Mode gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hitlbot/internal/logging"
)

// Config configures the HTTP listener.
type Config struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	EnableCORS   bool          `yaml:"enable_cors" mapstructure:"enable_cors"`
	Debug        bool          `yaml:"debug" mapstructure:"debug"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// DefaultConfig returns the default listener configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Agents    []string  `json:"agents,omitempty"`
}

// Deps are the read-only collaborators the routes report on.
type Deps struct {
	Version string
	// Metrics serves GET /metrics. Nil disables the route.
	Metrics http.Handler
	// Agents lists the registered agent names.
	Agents func() []string
	Logger logging.Logger
}

// Server serves the operational endpoints.
type Server struct {
	cfg        Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
	startTime  time.Time
	now        func() time.Time
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		engine:    engine,
		logger:    logging.OrNop(deps.Logger),
		startTime: time.Now(),
		now:       time.Now,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	now := s.now()
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.deps.Version,
		Timestamp: now,
		Uptime:    now.Sub(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Agents != nil {
		resp.Agents = s.deps.Agents()
	}
	c.JSON(http.StatusOK, resp)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("HTTP server listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Error shutting down HTTP server: %v", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

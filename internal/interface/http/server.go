// Package http implements the REST surface of the progression hub: event
// ingestion, engine operations and read models.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/k9quest/progression-hub/internal/application/command"
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/interface/http/handlers"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context of every request (0 = none).
	RequestTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	// AllowedOrigins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// APIKeys protect the /v1 routes. Empty disables authentication.
	APIKeyHeader string
	APIKeys      []string

	// Mode is the gin mode: debug, release or test.
	Mode string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		APIKeyHeader:   "X-API-Key",
		Mode:           gin.ReleaseMode,
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the routes call into.
type Dependencies struct {
	// Bus receives ingested user-action events.
	Bus shared.EventPublisher

	// Recorder stores the submission and assignment copies carried by events.
	Recorder coursework.Recorder

	Badges *command.EvaluateBadgesHandler
	Paths  *command.ProgressPathHandler
	Daily  *command.DailyChallengeHandler

	Level       *query.GetLevelProgressHandler
	Leaderboard *query.GetLeaderboardHandler

	Health handlers.HealthChecker
	Logger *logger.Logger
	Clock  timeutil.Clock
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the gin HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	validate   *validator.Validate
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer builds the router and the underlying http.Server.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker("")
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config:   config,
		deps:     deps,
		engine:   gin.New(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   deps.Logger.With(logger.Component("http")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler exposes the router (used by tests).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine
	r.Use(
		handlers.Recovery(s.logger),
		handlers.RequestID(s.deps.Logger),
		handlers.AccessLog(s.logger),
		handlers.SecurityHeaders(),
	)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(s.config.AllowedOrigins, s.config.APIKeyHeader)))
	}

	r.GET("/healthz", handlers.HealthHandler(s.deps.Health))

	v1 := r.Group("/v1")
	v1.Use(
		handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys).Middleware(),
		handlers.BodyLimit(s.config.MaxBodyBytes),
		handlers.Timeout(s.config.RequestTimeout),
	)
	{
		v1.POST("/events", s.handleIngestEvent)
		v1.GET("/leaderboard", s.handleLeaderboard)

		users := v1.Group("/users/:user_id")
		users.GET("/level", s.handleLevel)
		users.POST("/badges/backfill", s.handleBackfill)

		users.POST("/paths/:path_id/enter", s.handleEnterPath)
		users.POST("/stages/:stage_id/start", s.handleStartStage)
		users.POST("/stages/:stage_id/complete", s.handleCompleteStage)
		users.POST("/stages/:stage_id/quiz", s.handleSubmitQuiz)

		users.GET("/daily", s.handleDailyBoard)
		users.POST("/daily/:task_id/claim", s.handleClaim)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", "route not found")
	})
}

func corsConfig(origins []string, apiKeyHeader string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", handlers.HeaderRequestID},
		ExposeHeaders: []string{handlers.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if apiKeyHeader != "" {
		cfg.AllowHeaders = append(cfg.AllowHeaders, apiKeyHeader)
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("http: server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel yields at most one error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	uptime := time.Since(s.startedAt)
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server", logger.Duration("uptime", uptime))
	return s.httpServer.Shutdown(ctx)
}

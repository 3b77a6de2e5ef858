// Package server wires the fraud detection engine into its HTTP
// surface: analysis endpoints, the dashboard, the websocket alert
// feed, and the operational probes.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/nexus/internal/config"
	"github.com/mbd888/nexus/internal/dashboard"
	"github.com/mbd888/nexus/internal/engine"
	"github.com/mbd888/nexus/internal/feed"
	"github.com/mbd888/nexus/internal/health"
	"github.com/mbd888/nexus/internal/logging"
	"github.com/mbd888/nexus/internal/metrics"
	"github.com/mbd888/nexus/internal/opfraud"
	"github.com/mbd888/nexus/internal/profile"
	"github.com/mbd888/nexus/internal/ratelimit"
	"github.com/mbd888/nexus/internal/scoring"
	"github.com/mbd888/nexus/internal/security"
	"github.com/mbd888/nexus/internal/traces"
)

// maxRequestBody bounds analysis payloads. The largest legitimate
// request is a collusion batch, comfortably under this.
const maxRequestBody = 1 << 20 // 1MB

// Server wraps the HTTP server and the analysis pipeline.
type Server struct {
	cfg *config.Config

	profiles    *profile.Store
	coordinator *engine.Coordinator
	aggregator  *dashboard.Aggregator
	opDetector  *opfraud.Detector
	hub         *feed.Hub
	healthReg   *health.Registry
	rateLimiter *ratelimit.Limiter

	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	traceStop    func(context.Context) error
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New assembles the pipeline and the router. The server is not
// listening until Run is called.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	classifier, err := scoring.NewClassifier(scoring.ClassifierOptions{
		CriticalThreshold: cfg.CriticalThreshold,
		HighThreshold:     cfg.HighThreshold,
		MediumThreshold:   cfg.MediumThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	scorer := scoring.NewScorer(scoring.Options{
		VelocityThreshold: cfg.VelocityThreshold,
		AmountCeiling:     cfg.AmountCeiling,
		ZScoreThreshold:   cfg.ZScoreThreshold,
	}, classifier)

	s.profiles = profile.NewStore()
	s.hub = feed.NewHub(s.logger, feed.Options{
		QueueCap:          cfg.ObserverQueueCap,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	s.coordinator = engine.New(s.profiles, scorer, s.hub, engine.Options{
		RecentCap: cfg.RecentAlerts,
	})
	s.aggregator = dashboard.NewAggregator(s.coordinator)
	s.coordinator.AttachSink(s.aggregator)
	s.opDetector = opfraud.NewDetector(opfraud.Options{LargeAmount: cfg.AmountCeiling})

	s.healthReg = health.NewRegistry()
	s.healthReg.Register("engine", func(ctx context.Context) health.Status {
		return health.Status{
			Name:    "engine",
			Healthy: true,
			Detail:  fmt.Sprintf("%d accounts tracked", s.coordinator.TrackedAccounts()),
		}
	})
	s.healthReg.Register("feed", func(ctx context.Context) health.Status {
		stats := s.hub.Stats()
		return health.Status{
			Name:    "feed",
			Healthy: true,
			Detail:  fmt.Sprintf("%d observers connected", stats["connectedObservers"]),
		}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(security.MaxBodyBytes(maxRequestBody))

	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(cfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws/alerts", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request, &alertReplayer{s.coordinator})
	})

	api := s.router.Group("/api")
	api.GET("/", s.infoHandler)

	fraudHandler := engine.NewHandler(s.coordinator, s.logger)
	fraudHandler.RegisterRoutes(api.Group("/fraud"))

	dashHandler := dashboard.NewHandler(s.aggregator)
	dashHandler.RegisterRoutes(api.Group("/fraud/dashboard"))

	opHandler := opfraud.NewHandler(s.opDetector)
	opHandler.RegisterRoutes(api.Group("/operational"))
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "nexus",
		"description": "real-time banking fraud detection engine",
		"version":     "0.1.0",
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the HTTP server and blocks until a shutdown signal, a
// server error, or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	stopTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without traces", "error", err)
	} else {
		s.traceStop = stopTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and its background loops.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.traceStop != nil {
		if err := s.traceStop(ctx); err != nil {
			s.logger.Error("trace exporter close error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router exposes the gin router for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// alertReplayer converts the coordinator's recent-alert ring into feed
// events for new websocket subscribers.
type alertReplayer struct {
	coord *engine.Coordinator
}

func (r *alertReplayer) RecentEvents() []feed.Event {
	recent := r.coord.Recent()
	events := make([]feed.Event, 0, len(recent))
	for _, rec := range recent {
		events = append(events, feed.Event{
			Type:      feed.EventAlert,
			Timestamp: rec.CreatedAt,
			Alert:     rec,
		})
	}
	return events
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

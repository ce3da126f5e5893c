package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/access"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/audit"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/cache"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/config"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/database"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/manifest"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/middleware"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/session"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/storage"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/token"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/tracing"
)

type API struct {
	builder  ManifestBuilder
	sessions SessionService
	access   AccessChecker
	repo     Repo
	storage  ManifestStorage
	verifier TokenVerifier
	auth     *middleware.Auth
	logger   *logging.Logger
	health   func(ctx context.Context) error
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	_, tracerCloser, err := tracing.InitTracer("streamgate-api", os.Getenv("JAEGER_ENDPOINT"))
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	} else {
		defer tracerCloser.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	var renditionCache manifest.RenditionCache
	var videos access.VideoStore = repo
	if videoCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL); err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without cache")
	} else {
		defer videoCache.Close()
		renditionCache = videoCache
		videos = cache.NewCachedVideoStore(videoCache, repo)
	}

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Audit decisions go to the queue when it is reachable, otherwise to
	// the log. Access decisions must not depend on the broker being up.
	var sink audit.Sink
	amqpSink, err := audit.NewAMQPSink(cfg.Queue)
	if err != nil {
		logger.WithError(err).Warn("Audit queue unavailable, falling back to log sink")
		sink = audit.NewLogSink(logger)
	} else {
		defer amqpSink.Close()
		sink = amqpSink
	}
	emitter := audit.NewEmitter(sink, logger)

	resolver := access.NewResolver(videos, repo, emitter, logger)

	sessions := session.NewManager(repo, logger, session.Options{
		TTL:                   cfg.Session.TTL,
		MaxConcurrentSessions: cfg.Session.MaxConcurrentSessions,
		StrictIPCheck:         cfg.Session.StrictIPCheck,
	})

	signer := token.NewSigner(cfg.Signing.Secret)

	builder := manifest.NewBuilder(resolver, sessions, signer, repo, renditionCache, logger, cfg.Signing.URLTTL)

	api := &API{
		builder:  builder,
		sessions: sessions,
		access:   resolver,
		repo:     repo,
		storage:  stor,
		verifier: signer,
		auth:     middleware.NewAuth(cfg.Auth.JWTSecret),
		logger:   logger,
		health: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return db.Health(ctx)
		},
	}

	router := setupRouter(api, cfg)

	metricsServer := metrics.NewServer(9091)
	go func() {
		if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}

	logger.Info("Server stopped")
}

func setupRouter(api *API, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(api.logger))

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	router.GET("/health", api.healthHandler)

	// Stream validation sits outside the API group so players can hit it
	// with only the signed query parameters.
	router.GET("/stream/:video_id/:quality", api.auth.OptionalViewer(), api.streamHandler)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(limiter))
	{
		v1.POST("/videos/:id/manifest", api.auth.OptionalViewer(), api.createManifestHandler)

		v1.POST("/sessions/:token/heartbeat", api.heartbeatHandler)
		v1.DELETE("/sessions/:token", api.auth.OptionalViewer(), api.revokeSessionHandler)
		v1.GET("/sessions", api.auth.RequireViewer(), api.listSessionsHandler)

		v1.POST("/videos/:id/grants", api.auth.RequireViewer(), api.createGrantHandler)
		v1.GET("/videos/:id/grants", api.auth.RequireViewer(), api.listGrantsHandler)
		v1.DELETE("/videos/:id/grants/:user_id", api.auth.RequireViewer(), api.deleteGrantHandler)
	}

	return router
}

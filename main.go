package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogposts/config"
	"blogposts/database"
	"blogposts/handlers"
	"blogposts/logger"
	"blogposts/metrics"
	"blogposts/middleware"
	"blogposts/routes"
	"blogposts/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	foundDotEnv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		// logger config comes from cfg, so this one goes to a bootstrap logger
		boot, _ := logger.New("info", false)
		boot.Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting blog posts server",
		zap.String("environment", cfg.Environment),
		zap.Bool("dotenv", foundDotEnv))

	switch {
	case cfg.GinMode != "":
		gin.SetMode(cfg.GinMode)
	case cfg.IsProduction():
		gin.SetMode(gin.ReleaseMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectWithRetry(ctx, cfg.MongoURI, cfg.MongoDatabase, 3, 2*time.Second, log)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}

	store := database.NewMongoPostStore(db.Collection(cfg.MongoCollection))
	counter := metrics.NewCounter()

	hubCtx, stopHub := context.WithCancel(context.Background())
	events := websocket.NewManager(log.Named("websocket"))
	go events.Run(hubCtx)

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, limiter, log)
	}

	router := routes.SetupRouter(routes.Dependencies{
		Posts:          handlers.NewPostHandler(store, counter, events, log, cfg.RequestTimeout),
		Health:         handlers.NewHealthHandler(store, cfg.Environment, log),
		Metrics:        handlers.NewMetricsHandler(counter),
		Counter:        counter,
		Log:            log,
		AllowedOrigins: cfg.AllowedOrigins,
		Events:         events,
		RateLimiter:    limiter,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
		exitCode = 1
	}

	stopHub()
	select {
	case <-events.Done():
	case <-shutdownCtx.Done():
	}

	if err := db.Disconnect(shutdownCtx); err != nil {
		log.Error("failed to disconnect from MongoDB", zap.Error(err))
		exitCode = 1
	}

	log.Info("server stopped")
	if exitCode != 0 {
		_ = log.Sync()
		os.Exit(exitCode)
	}
}

func sweepLimiter(ctx context.Context, limiter *middleware.IPRateLimiter, log *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Cleanup(5 * time.Minute); n > 0 {
				log.Debug("rate limiter sweep", zap.Int("removed", n))
			}
		}
	}
}

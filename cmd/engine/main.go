package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/api"
	"github.com/classtrack/chime/internal/config"
	"github.com/classtrack/chime/internal/db"
	"github.com/classtrack/chime/internal/engine"
	"github.com/classtrack/chime/internal/metrics"
	"github.com/classtrack/chime/internal/observ"
	"github.com/classtrack/chime/internal/push"
	"github.com/classtrack/chime/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting chime engine",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Int("lookahead_min", cfg.ReminderLookaheadMin),
		zap.Int("digest_hour", cfg.DigestHour),
	)

	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis only backs the delivery markers; the engine degrades to plain
	// at-least-once without it.
	var marker engine.DeliveryMarker
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, duplicate suppression disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		marker = redis.NewMarkerService(redisClient, logger)
		defer redisClient.Close()
	}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		private, public, err := push.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		cfg.VAPIDPrivateKey = private
		cfg.VAPIDPublicKey = public
		// Ephemeral keys orphan existing subscriptions on restart; fine for
		// development, configure VAPID_* in production.
		logger.Warn("VAPID keys not configured, generated an ephemeral pair",
			zap.String("public_key", public),
		)
	}

	sender := push.NewWebPushSender(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
		TTL:             cfg.PushTTLSeconds,
	}, logger)

	reaper := engine.NewReaper(repo, logger)
	pipeline := engine.NewPipeline(sender, reaper, cfg.DispatchWorkers, logger)

	reminders := engine.NewReminderScheduler(repo, pipeline, marker,
		time.Duration(cfg.ReminderLookaheadMin)*time.Minute, logger)
	digests := engine.NewDigestScheduler(repo, pipeline, marker, cfg.DigestHour, logger)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go reminders.Start(schedCtx)
	go digests.Start(schedCtx)

	logger.Info("schedulers started")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, repo, cfg.VAPIDPublicKey)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/subscriptions", handler.CreateSubscription)
		r.Delete("/subscriptions", handler.DeleteSubscription)
		r.Get("/vapid-key", handler.GetVAPIDKey)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop the schedulers first so no new fan-out starts mid-shutdown.
		schedCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MailDispatch/internal/api"
	"MailDispatch/internal/config"
	"MailDispatch/internal/db"
	"MailDispatch/internal/email"
	"MailDispatch/internal/metrics"
	"MailDispatch/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logConfig := zap.NewProductionConfig()
	logger, err := logConfig.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		logger.Warn("unknown log level, keeping info", zap.String("level", cfg.LogLevel))
	} else {
		logConfig.Level.SetLevel(level)
	}

	logger.Info("configuration loaded",
		zap.String("database_host", cfg.DatabaseHost),
		zap.Int("database_port", cfg.DatabasePort),
		zap.String("database_name", cfg.DatabaseName),
		zap.Duration("interval", cfg.Interval()),
		zap.Int("max_retries", cfg.MaxRetries()),
		zap.Duration("retry_delay", cfg.RetryDelay()),
	)

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Email Sender
	// ------------------------------------------------
	mailer := &email.RetrySender{
		Mailer:     &email.Sender{Timeout: email.DefaultSendTimeout},
		MaxRetries: cfg.MaxRetries(),
		Delay:      cfg.RetryDelay(),
		Log:        logger,
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	limit := rate.Inf
	if cfg.WorkerRateLimit > 0 {
		limit = rate.Limit(cfg.WorkerRateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	// ------------------------------------------------
	// Dispatcher
	// ------------------------------------------------
	dispatcher := worker.NewDispatcher(store, mailer, limiter, logger, cfg.Interval())

	// ------------------------------------------------
	// Metrics + Status Server (optional)
	// ------------------------------------------------
	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		metrics.Init()

		statusHandler := &api.Handler{
			Reports: dispatcher,
			Log:     logger,
		}

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/status", statusHandler.Status)

		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("metrics server error", zap.Error(err))
			}
		}()
	}

	// ------------------------------------------------
	// Run until shutdown
	// ------------------------------------------------
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx)
	}()

	<-ctx.Done()

	logger.Info("shutting down services...")

	// Wait for the in-flight cycle to release its claim and write the heartbeat
	<-done

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", zap.Error(err))
		}
	}

	logger.Info("application shutdown complete")
}

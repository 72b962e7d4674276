package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/uploaduser/internal/application"
	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/logging"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
	"github.com/JonMunkholm/uploaduser/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	site, res, err := application.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open directory", "error", err)
		os.Exit(1)
	}
	defer res.Close()

	var opts []web.Option
	opts = append(opts, web.WithPinger(res.Pool))
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		site.Metrics = tracker.NewMetrics(reg)
		opts = append(opts, web.WithMetrics(reg))
	}

	server := web.NewServer(site, cfg, opts...)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go application.StartRetention(jobCtx, res.Store, application.RetentionConfig{
		Retention:     cfg.History.Retention(),
		CheckInterval: cfg.History.CheckInterval,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for the active run to finish (with timeout)
		if status := site.Limiter.Status(); status.Active > 0 {
			slog.Info("waiting for upload runs to complete", "active", status.Active)
			if err := site.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("upload runs did not complete in time", "error", err)
			} else {
				slog.Info("all upload runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		res.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

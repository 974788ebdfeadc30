// fileroot server
//
// Serves one data directory over HTTP:
// - listing, mkdir/rmdir, rm, mv, cp, streamed upload/download
// - SSE change feed
// - Prometheus metrics & structured logging (zap)
// - optional static assets and global rate limit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fruitsalade/fileroot/internal/api"
	"github.com/fruitsalade/fileroot/internal/config"
	"github.com/fruitsalade/fileroot/internal/events"
	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/internal/metrics"
	"github.com/fruitsalade/fileroot/internal/ratelimiter"
	"github.com/fruitsalade/fileroot/internal/storage/local"
)

func main() {
	configPath := flag.String("config", "", "Config file (YAML or TOML); defaults to $"+config.EnvConfigFile)
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "print config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logging init error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(cfg); err != nil {
		logging.Error("server stopped", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	backend, err := local.New(local.Config{RootPath: cfg.DataDir})
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	defer backend.Close()

	logging.Info("fileroot server starting",
		zap.String("listen", cfg.Addr()),
		zap.String("data_dir", backend.Root()),
		zap.String("metrics", cfg.MetricsAddr))

	opts := api.Options{
		Root:      backend.Root(),
		AssetsDir: cfg.AssetsDir,
	}
	if cfg.EventsEnabled {
		opts.Broadcaster = events.NewBroadcaster()
		logging.Info("SSE broadcaster initialized")
	}
	if cfg.RateLimitEnabled() {
		opts.RateLimiter = ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logging.Info("rate limit enabled",
			zap.Float64("rps", cfg.RateLimitRPS),
			zap.Int("burst", cfg.RateLimitBurst))
	}

	srv := api.NewServer(backend, opts)

	// Transfers may run for as long as the client keeps reading or writing,
	// so only the header read is bounded.
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.Broadcaster != nil {
		httpServer.RegisterOnShutdown(opts.Broadcaster.Close)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.Addr()))
		serveErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-serveErr:
		if metricsServer != nil {
			metricsServer.Close()
		}
		return fmt.Errorf("listen: %w", err)
	case sig := <-sigCh:
		logging.Info("shutting down...",
			zap.String("signal", sig.String()),
			zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		metricsServer.Shutdown(ctx)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		// In-flight transfers outlived the timeout; cut them off.
		logging.Warn("graceful shutdown timed out", zap.Error(err))
		httpServer.Close()
	}
	logging.Info("server stopped")
	return nil
}

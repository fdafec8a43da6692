package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/quantbridge/ibgate/internal/config"
	"github.com/quantbridge/ibgate/internal/gateway"
	"github.com/quantbridge/ibgate/internal/metrics"
	"github.com/quantbridge/ibgate/internal/pool"
	"github.com/quantbridge/ibgate/internal/server"
	"github.com/quantbridge/ibgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ibgate.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger; replaced once the config is loaded.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ibgate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"gateway", cfg.Gateway.Host,
		"gateway_port", cfg.Gateway.Port,
		"pool_capacity", cfg.Pool.Capacity,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	poolMetrics := metrics.NewPoolMetrics(registry)
	serverMetrics := metrics.NewServerMetrics(registry)

	dialer := gateway.NewTCPDialer(gateway.DefaultDialConfig(), logger)
	sessionPool := pool.New(poolConfig(cfg), dialer, poolMetrics, logger)

	if err := sessionPool.Initialize(ctx); err != nil {
		logger.Error("failed to initialize session pool", "error", err)
		os.Exit(1)
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	srv := server.New(cfg.Server, cfg.Metrics, sessionPool, serverMetrics, metricsHandler, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		// Drain HTTP first so no request sees a dead pool.
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", "error", err)
		}
		return sessionPool.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("ibgate stopped")
}

// poolConfig maps the service config onto the pool's config.
func poolConfig(cfg *config.ServiceConfig) pool.Config {
	return pool.Config{
		Capacity:          cfg.Pool.Capacity,
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		ClientIDBase:      cfg.Gateway.ClientIDBase,
		ClientIDSpread:    cfg.Gateway.Spread(),
		ConnectTimeout:    cfg.Gateway.ConnectTimeout,
		LeaseTimeout:      cfg.Pool.LeaseTimeout,
		HeartbeatInterval: cfg.Pool.HeartbeatInterval,
		StaleAfter:        cfg.Pool.StaleAfter,
		Retry: pool.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/boringmetrics/boringmetrics-go/internal/config"
	"github.com/boringmetrics/boringmetrics-go/internal/logger"
	"github.com/boringmetrics/boringmetrics-go/internal/metrics"
	"github.com/boringmetrics/boringmetrics-go/internal/shipper"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/engine"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/httptransport"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/redistransport"
)

const agentUserAgent = "boringmetrics-agent"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := cfg.ValidateTransport(); err != nil {
		return err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, closeTransport, err := newTransport(ctx, cfg, &engineCfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	m := metrics.NewDeliveryMetrics(nil)
	if cfg.MetricsAddr != "" {
		metricsServer := startMetricsServer(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	eng, err := engine.New(engineCfg, transport,
		engine.WithLogger(log),
		engine.WithObserver(m),
	)
	if err != nil {
		return err
	}
	active := eng.Config()
	log.Info("delivery engine started",
		"transport", cfg.Transport,
		"max_retry_attempts", active.MaxRetryAttempts,
		"logs_max_batch_size", active.LogsMaxBatchSize,
		"logs_send_interval", active.LogsSendInterval,
		"live_failure_policy", active.LiveFailurePolicy.String(),
	)

	s := shipper.New(ctx, shipper.Config{
		LogRootPath:       cfg.LogPath,
		ScanInterval:      cfg.ScanInterval,
		Workers:           cfg.Workers,
		FileQueueSize:     cfg.FileQueueSize,
		NodeName:          cfg.NodeName,
		FileIdleTimeout:   cfg.FileIdleTimeout,
		MaxLinesPerSecond: cfg.MaxLinesPerSecond,
		FromStart:         cfg.FromStart,
	}, eng, log)
	s.Start()

	<-ctx.Done()
	log.Info("received shutdown signal")

	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := eng.Close(shutdownCtx); err != nil {
		log.Warn("delivery engine did not drain before the deadline", "error", err)
	}

	stats := eng.Stats()
	log.Info("agent stopped",
		"logs_enqueued", stats.LogsEnqueued,
		"log_batches_sent", stats.LogBatchesSent,
		"items_abandoned", stats.ItemsAbandoned,
	)
	return nil
}

// newTransport builds the configured transport and, for HTTP, restricts
// retries to statuses worth retrying unless RetryAllErrors is set.
func newTransport(ctx context.Context, cfg *config.Config, engineCfg *telemetry.Config) (telemetry.Transport, func(), error) {
	switch cfg.Transport {
	case config.TransportRedis:
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("could not connect to redis, deliveries will be retried", "error", err)
		}
		return redistransport.New(client,
			redistransport.WithPrefix(cfg.RedisPrefix),
			redistransport.WithMaxLen(cfg.RedisMaxLen),
		), func() { _ = client.Close() }, nil

	default:
		if !cfg.RetryAllErrors {
			engineCfg.Retryable = httptransport.RetryableStatus
		}
		return httptransport.New(
			httptransport.WithBaseURL(cfg.APIURL),
			httptransport.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			httptransport.WithGzip(cfg.Gzip),
			httptransport.WithUserAgent(agentUserAgent),
		), func() {}, nil
	}
}

func startMetricsServer(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Info("starting metrics server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()
	return server
}

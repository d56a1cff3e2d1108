// Package main is the entry point for the clickstream sessionizer.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/sessionizer/internal/config"
	"github.com/onnwee/sessionizer/internal/consumer"
	"github.com/onnwee/sessionizer/internal/health"
	"github.com/onnwee/sessionizer/internal/ingest"
	"github.com/onnwee/sessionizer/internal/middleware"
	"github.com/onnwee/sessionizer/internal/stats"
	"github.com/onnwee/sessionizer/internal/store"
	"github.com/onnwee/sessionizer/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Clickstream Sessionizer")
		fmt.Println()
		fmt.Println("Usage: sessionizer [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	logger.Info("starting sessionizer")
	for key, value := range cfg.LogSummary() {
		logger.Debug("config", slog.String(key, value))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("sessionizer exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("sessionizer stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "sessionizer",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.OTLPExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TraceSamplingRate,
		InsecureMode: cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracing", slog.String("error", err.Error()))
		}
	}()

	// Database
	db, err := store.Open(ctx, cfg.PostgresDSN(), cfg.DBPoolSize)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}()

	events := store.NewPostgresEventRepository(db, logger)
	sessions := store.NewPostgresSessionRepository(db, logger)

	// Kafka TLS
	var tlsConfig *tls.Config
	if cfg.KafkaTLSEnabled() {
		tlsConfig, err = consumer.NewTLSConfig(cfg.KafkaCACertPath, cfg.KafkaAccessCertPath, cfg.KafkaAccessKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load kafka TLS config: %w", err)
		}
	}

	// Metrics and counters
	metrics := ingest.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	ingestStats := stats.NewIngestStats()

	// Pipeline
	processor := ingest.NewProcessor(cfg.KafkaTopic, events, sessions, metrics, ingestStats, logger)

	consumerConfig := consumer.DefaultConfig(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	consumerConfig.FromBeginning = cfg.KafkaFromBeginning
	consumerConfig.TLS = tlsConfig

	kafkaConsumer, err := consumer.NewConsumer(consumerConfig, processor.Handle, logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Metrics and health server
	healthHandlers := health.NewHandlers(health.HandlersConfig{
		DBChecker:    health.NewDBChecker(db),
		KafkaChecker: health.NewKafkaChecker(cfg.KafkaBrokers, tlsConfig),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", ingest.InternalAuthMiddleware(cfg.MetricsToken)(ingest.MetricsHandler(registry)))
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      middleware.RequestID(middleware.Logging(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", slog.Int("port", cfg.MetricsPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	// Progress reporting
	reporter := ingest.NewProgressReporter(ingestStats, ingest.DefaultReportInterval, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	// Consume until cancellation or an unrecoverable pipeline error.
	runErr := kafkaConsumer.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server forced to shut down", slog.String("error", err.Error()))
	}

	return runErr
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sensor-gateway/internal/config"
	"sensor-gateway/internal/observability/metrics"
	"sensor-gateway/internal/telemetry/application"
	"sensor-gateway/internal/telemetry/infrastructure/memory"
	telemetryhttp "sensor-gateway/internal/telemetry/interfaces/http"
)

const requestIDHeader = "X-Request-ID"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	handler, err := buildHandler(cfg, logger)
	if err != nil {
		logger.Fatal("wiring error", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(logger, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}
}

func buildHandler(cfg config.Config, logger *zap.Logger) (http.Handler, error) {
	registryOpts := []metrics.Option{
		metrics.WithLogger(logger),
		metrics.WithMaxDevices(cfg.Metrics.MaxDevices),
	}
	if cfg.Metrics.RuntimeCollectors {
		registryOpts = append(registryOpts, metrics.WithRuntimeCollectors())
	}
	registry := metrics.NewRegistry(registryOpts...)
	history := memory.NewHistoryBuffer(cfg.History.Capacity)

	service, err := application.NewService(history, registry,
		application.WithLogger(logger),
		application.WithRecentLimit(cfg.History.RecentLimit),
		application.WithCoercionAsClientError(cfg.Ingest.CoercionAsClientError),
	)
	if err != nil {
		return nil, err
	}
	sensorHandler, err := telemetryhttp.NewHandler(service, logger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	sensorHandler.Register(mux)
	return mux, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func printBanner(logger *zap.Logger, cfg config.Config) {
	logger.Info("sensor gateway starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("history_capacity", cfg.History.Capacity),
		zap.Int("max_devices", cfg.Metrics.MaxDevices),
		zap.Strings("endpoints", []string{"POST /sensor", "GET /dados", "GET /dados/export", "GET /metrics", "GET /health"}))
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
			zap.String("remote", r.RemoteAddr))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

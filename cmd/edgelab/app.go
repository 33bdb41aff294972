package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"edge-lab/internal/config"
	"edge-lab/internal/domain"
	"edge-lab/internal/engine"
	"edge-lab/internal/logger"
	"edge-lab/internal/observability"
	"edge-lab/internal/storage/backend"
)

// app is the per-invocation wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	stores  *backend.Stores
	engine  *engine.Engine
	metrics *http.Server

	closers []io.Closer
}

// newApp loads configuration and connects everything an engine needs.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log, closers: []io.Closer{logCloser}}

	stores, err := backend.Open(ctx, cfg.Storage, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.stores = stores
	a.closers = append(a.closers, stores)

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("", reg)
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr, reg)
	}

	a.engine = engine.New(engine.Options{
		Stores:     stores.Set,
		Validation: cfg.Validation,
		MinTier:    domain.ConfidenceTier(cfg.Manifest.MinTier),
		Consumers:  cfg.Manifest.Consumers,
		Workers:    cfg.Engine.Workers,
		Recorder:   m,
		Logger:     log,
	})
	return a, nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.HandlerFor(reg))

	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info("metrics server listening", "addr", addr)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Close stops the metrics server and releases stores and the log file.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.metrics.Shutdown(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

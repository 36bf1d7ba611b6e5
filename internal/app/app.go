// Package app wires configuration, logging, storage, the aggregation
// engine, sample sources, and graceful shutdown handling for the usage
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsucare2025-capstone/wattwisepro/internal/api"
	"github.com/tsucare2025-capstone/wattwisepro/internal/config"
	"github.com/tsucare2025-capstone/wattwisepro/internal/delta"
	"github.com/tsucare2025-capstone/wattwisepro/internal/ingest"
	"github.com/tsucare2025-capstone/wattwisepro/internal/logging"
	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
	"github.com/tsucare2025-capstone/wattwisepro/internal/usage"
)

// Application owns the service lifecycle.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func()
	store      *store.SQLiteStore
	engine     *usage.Engine
	scheduler  *usage.Scheduler
	server     *http.Server
	kafka      *ingest.KafkaConsumer
	mqtt       *ingest.MQTTSource
}

// New prepares a fully wired service instance from the supplied
// configuration. Broker sources are only attached when configured.
func New(cfg config.Config) (*Application, error) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return nil, errors.New("listen address cannot be empty")
	}

	logger, cleanup, err := logging.New(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	loc := period.Zone(cfg.TimezoneOffsetMinutes)
	cache := delta.NewCache()
	estimator := delta.NewEstimator(cache, cfg.NominalInterval)

	engine := usage.NewEngine(st, cache, estimator, metrics, logger.With(slog.String("component", "engine")), usage.Options{
		Location:       loc,
		StaleThreshold: cfg.StaleThreshold,
		RecentWeeks:    cfg.RecentWeeks,
	})
	scheduler := usage.NewScheduler(engine, metrics,
		logger.With(slog.String("component", "scheduler")), loc, cfg.RefreshPerMinute, nil)
	engine.OnFold = scheduler.NotifyFold

	server := api.NewServer(engine, st, logger.With(slog.String("component", "api")), nil)
	handler := api.NewRouter(server, metrics, reg, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPWriteTimeout,
	}

	logger.Info("service_configured",
		slog.String("address", cfg.ListenAddress),
		slog.String("db", cfg.DBPath),
		slog.Int("tz_offset_minutes", cfg.TimezoneOffsetMinutes),
		slog.Duration("nominal_interval", cfg.NominalInterval),
		slog.Bool("kafka_enabled", len(cfg.KafkaBrokers) > 0),
		slog.Bool("mqtt_enabled", cfg.MQTTBroker != ""),
	)

	return &Application{
		cfg:        cfg,
		logger:     logger,
		logCleanup: cleanup,
		store:      st,
		engine:     engine,
		scheduler:  scheduler,
		server:     httpServer,
	}, nil
}

// Logger exposes the configured slog logger so main can emit
// structured logs after initialization.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Run blocks until the context is cancelled or the HTTP server
// terminates unexpectedly.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(a.cfg.KafkaBrokers) > 0 {
		consumer, err := ingest.StartKafka(ctx, ingest.KafkaConfig{
			Brokers: a.cfg.KafkaBrokers,
			Topic:   a.cfg.KafkaTopic,
			GroupID: a.cfg.KafkaGroupID,
		}, a.engine, a.logger)
		if err != nil {
			return fmt.Errorf("start kafka source: %w", err)
		}
		a.kafka = consumer
	}

	if a.cfg.MQTTBroker != "" {
		src, err := ingest.StartMQTT(ingest.MQTTConfig{
			Broker: a.cfg.MQTTBroker,
			Topic:  a.cfg.MQTTTopic,
		}, a.engine, a.logger)
		if err != nil {
			return fmt.Errorf("start mqtt source: %w", err)
		}
		a.mqtt = src
	}

	go a.scheduler.Run(ctx)

	httpCh := make(chan error, 1)
	go func() {
		a.logger.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		err := a.server.ListenAndServe()
		httpCh <- err
	}()

	var httpErr error
	select {
	case err := <-httpCh:
		httpCh = nil
		httpErr = err
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http_server_error", slog.Any("err", err))
		}
		cancel()
	case <-ctx.Done():
	}

	a.logger.Info("shutdown_signal")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server_shutdown_failed", slog.Any("err", err))
		if httpErr == nil {
			httpErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	shutdownCancel()
	if httpCh != nil {
		if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			if httpErr == nil {
				httpErr = err
			}
		}
	}

	if a.kafka != nil {
		a.kafka.Wait()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}

	// Give background refolds a moment to reach the store before it
	// closes underneath them.
	time.Sleep(50 * time.Millisecond)

	if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
		return httpErr
	}
	a.logger.Info("shutdown_complete")
	return nil
}

// Close flushes and closes resources owned by the application.
func (a *Application) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
		a.store = nil
	}
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
	return firstErr
}

// Package main provides the msgdispatch server: an HTTP API for publishing
// type-tagged messages, a demo orders listener and, with the outbox broker,
// the background delivery worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coregx/msgdispatch"
	"github.com/coregx/msgdispatch/cmd/msgdispatch-server/internal/api"
	"github.com/coregx/msgdispatch/cmd/msgdispatch-server/internal/config"
	"github.com/coregx/msgdispatch/metric"
	"github.com/coregx/msgdispatch/resolver"
)

func main() {
	logger := msgdispatch.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(logger); err != nil {
		logger.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}

func run(logger *msgdispatch.SlogLogger) error {
	logger.Infof("Starting msgdispatch server v%s...", api.Version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration loaded")
	logger.Infof("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("   Broker: %s (destination %s)", cfg.Broker.Kind, cfg.Broker.Destination)
	logger.Infof("   Resolver: %s", cfg.Dispatch.Resolver)

	res, err := newResolver(cfg.Dispatch)
	if err != nil {
		return err
	}

	registry := metric.NewRegistry()

	listener, err := newOrdersListener(res, logger,
		msgdispatch.WithApplicationName(cfg.Dispatch.ApplicationName),
		msgdispatch.WithSensitiveFields(cfg.Dispatch.SensitiveFields...),
		msgdispatch.WithObserver(registry.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := newTransport(ctx, cfg, listener, logger, registry.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tr.Close(); closeErr != nil {
			logger.Warnf("Failed to close transport: %v", closeErr)
		}
	}()
	logger.Infof("Broker %s ready", cfg.Broker.Kind)

	publisher, err := msgdispatch.NewPublisher(
		msgdispatch.WithPublisherBroker(tr.broker),
		msgdispatch.WithPublisherLogger(logger),
		msgdispatch.WithPublisherResolver(res),
		msgdispatch.WithMaskedFields(cfg.Dispatch.SensitiveFields...),
		msgdispatch.WithPublisherObserver(registry.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	var wg sync.WaitGroup
	for _, runner := range tr.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner(ctx); err != nil {
				logger.Errorf("Background consumer stopped: %v", err)
			}
		}()
	}

	handler := api.NewHandler(api.Dependencies{
		Publisher:     publisher,
		Listeners:     []*msgdispatch.Listener{listener},
		Subscriptions: tr.subscriptions,
		Worker:        tr.worker,
		Logger:        logger,
		TypeField:     cfg.Dispatch.PayloadField,
		Broker:        cfg.Broker.Kind,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", registry.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.LoggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		logger.Info("API Endpoints:")
		logger.Info("   POST   /api/v1/publish")
		logger.Info("   GET    /api/v1/listeners")
		logger.Info("   POST   /api/v1/subscribe")
		logger.Info("   GET    /api/v1/subscriptions")
		logger.Info("   DELETE /api/v1/subscriptions/{id}")
		logger.Info("   GET    /api/v1/dlq/stats")
		logger.Info("   GET    /api/v1/health")
		logger.Info("   GET    /metrics")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop consumers and worker
	wg.Wait()
	logger.Info("Server stopped gracefully")
	return nil
}

func newResolver(cfg config.DispatchConfig) (resolver.TypeResolver, error) {
	switch cfg.Resolver {
	case config.ResolverPayload:
		return resolver.NewPayloadBased(cfg.PayloadField)
	default:
		return resolver.NewHeaderBased(cfg.HeaderField, cfg.PayloadField)
	}
}

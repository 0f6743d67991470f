package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/septivank/water-ops-service/internal/api"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/mq"
	"github.com/septivank/water-ops-service/internal/observability"
	"github.com/septivank/water-ops-service/internal/service"
	"github.com/septivank/water-ops-service/internal/stream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideRouter builds the HTTP handler with the websocket stream mounted
func ProvideRouter(h *api.Handler, hub *stream.Hub, metrics *observability.Metrics, cfg *config.Config, logger *zap.Logger) http.Handler {
	return api.NewRouter(h, api.RouterOptions{
		Stream:         hub.Handler(cfg.HTTP.AllowedOrigins),
		Metrics:        metrics,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})
}

func startHTTPServer(lc fx.Lifecycle, handler http.Handler, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown failed", zap.Error(err))
				return err
			}
			logger.Info("http server stopped gracefully")
			return nil
		},
	})
}

// startConsumer attaches the usage ingestion consumer when RabbitMQ is
// configured
func startConsumer(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger, svc *service.Dashboard) error {
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       svc.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting usage ingestion consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("consumer stopped gracefully")
			return nil
		},
	})
	return nil
}

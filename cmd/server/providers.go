package main

import (
	"context"
	"time"

	"github.com/septivank/water-ops-service/internal/anomaly"
	"github.com/septivank/water-ops-service/internal/api"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/events"
	"github.com/septivank/water-ops-service/internal/logging"
	"github.com/septivank/water-ops-service/internal/mq"
	"github.com/septivank/water-ops-service/internal/observability"
	"github.com/septivank/water-ops-service/internal/repository"
	"github.com/septivank/water-ops-service/internal/service"
	"github.com/septivank/water-ops-service/internal/stream"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideLogger builds the service logger at the configured level
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}

// ProvideLocation resolves the service timezone
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Location()
}

// ProvideStore picks PostgreSQL when DATABASE_URL is set, otherwise the
// in-memory store
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (repository.Store, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory record store")
		return repository.NewMemoryStore(), nil
	}
	pool, err := db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.ApplySchema)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresStore(pool), nil
}

// ProvideValidator creates the input validator
func ProvideValidator(cfg *config.Config, loc *time.Location) *validator.Validator {
	return validator.NewValidator(loc, cfg.Validation.FutureToleranceMinutes)
}

// ProvideAnomalyDetector creates the usage spike detector
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection, cfg.Anomaly.HistoryWindow)
}

func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

// ProvideHub creates the websocket hub and runs it for the app's lifetime
func ProvideHub(lc fx.Lifecycle, logger *zap.Logger) *stream.Hub {
	hub := stream.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hub.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return hub
}

// ProvideMQConnection dials RabbitMQ. It returns nil when RABBITMQ_URL is
// unset, which disables ingestion and event publishing to the broker.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL not set, queue ingestion and broker events disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideEventPublisher fans domain events out to websocket clients and,
// when connected, the events exchange
func ProvideEventPublisher(lc fx.Lifecycle, conn *mq.Connection, hub *stream.Hub, cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if conn == nil {
		return events.Multi{hub}, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return events.Multi{hub, publisher}, nil
}

// ProvideDashboard creates the dashboard service
func ProvideDashboard(
	store repository.Store,
	validator *validator.Validator,
	detector *anomaly.Detector,
	loc *time.Location,
	publisher events.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *service.Dashboard {
	return service.NewDashboard(service.Options{
		Store:     store,
		Validator: validator,
		Detector:  detector,
		Location:  loc,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})
}

func ProvideHandler(svc *service.Dashboard, cfg *config.Config, logger *zap.Logger) *api.Handler {
	return api.NewHandler(svc, cfg.Identity, logger)
}

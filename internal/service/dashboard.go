package service

import (
	"context"
	"fmt"
	"time"

	"github.com/septivank/water-ops-service/internal/anomaly"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/events"
	"github.com/septivank/water-ops-service/internal/kpi"
	"github.com/septivank/water-ops-service/internal/logging"
	"github.com/septivank/water-ops-service/internal/observability"
	"github.com/septivank/water-ops-service/internal/report"
	"github.com/septivank/water-ops-service/internal/repository"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

// Activity event types
const (
	ActivityUsageRecorded        = "usage_recorded"
	ActivityLeakReported         = "leak_reported"
	ActivityLeakUpdated          = "leak_updated"
	ActivityMaintenanceScheduled = "maintenance_scheduled"
	ActivityMaintenanceUpdated   = "maintenance_updated"
	ActivityAlertCreated         = "alert_created"
	ActivityAlertRead            = "alert_read"
	ActivityReportGenerated      = "report_generated"
)

// AlertTypeUsageSpike is the alert type raised for consumption spikes
const AlertTypeUsageSpike = "usage_spike"

type actorKey struct{}

// WithActor stores the acting user on ctx
func WithActor(ctx context.Context, actor config.Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user stored on ctx
func ActorFrom(ctx context.Context) (config.Identity, bool) {
	actor, ok := ctx.Value(actorKey{}).(config.Identity)
	return actor, ok
}

// Dashboard coordinates the record store with validation, KPI aggregation,
// report generation and event fan-out
type Dashboard struct {
	store      repository.Store
	validator  *validator.Validator
	detector   *anomaly.Detector
	aggregator *kpi.Aggregator
	formatter  *report.Formatter
	publisher  events.Publisher
	metrics    *observability.Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// Options carries the Dashboard dependencies. Publisher, Metrics and Now are
// optional.
type Options struct {
	Store     repository.Store
	Validator *validator.Validator
	Detector  *anomaly.Detector
	Location  *time.Location
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Now       func() time.Time
	Logger    *zap.Logger
}

// NewDashboard creates the dashboard service
func NewDashboard(opts Options) *Dashboard {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dashboard{
		store:      opts.Store,
		validator:  opts.Validator,
		detector:   opts.Detector,
		aggregator: kpi.NewAggregator(opts.Store, opts.Location, opts.Now),
		formatter:  report.NewFormatter(opts.Store, opts.Location, opts.Now),
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Health checks the record store
func (s *Dashboard) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// KPIs computes the dashboard indicators for the current day
func (s *Dashboard) KPIs(ctx context.Context) (kpi.KPIs, error) {
	return s.aggregator.Compute(ctx)
}

// record appends an activity entry and publishes the matching event. Both
// happen after the mutation is stored, so failures are logged and swallowed.
func (s *Dashboard) record(ctx context.Context, kind, action, activityType, location string, recordID int64, detail string, data any) {
	actor := currentActor(ctx)
	logger := logging.WithActor(s.logger, actor.UserID)

	details := fmt.Sprintf("%s by %s", detail, actor.Name)
	if _, err := s.store.AppendActivity(ctx, db.Activity{
		EventType: activityType,
		Location:  location,
		Timestamp: s.now(),
		Details:   &details,
	}); err != nil {
		logger.Error("failed to append activity",
			zap.Error(err),
			zap.String("event_type", activityType),
		)
	}

	event := events.New(kind, action, recordID, actor.UserID, data, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("routing_key", event.RoutingKey),
		)
	}
}

func currentActor(ctx context.Context) config.Identity {
	if actor, ok := ActorFrom(ctx); ok {
		return actor
	}
	return config.Identity{UserID: "system", Name: "system"}
}

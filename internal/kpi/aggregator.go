package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/repository"
)

// Aggregator computes KPIs from the record store. Nothing is cached, every
// call reads a fresh snapshot.
type Aggregator struct {
	store repository.Store
	loc   *time.Location
	now   func() time.Time
}

// NewAggregator creates an aggregator whose calendar days are taken in loc
func NewAggregator(store repository.Store, loc *time.Location, now func() time.Time) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, loc: loc, now: now}
}

// Compute returns the dashboard KPIs as of now
func (a *Aggregator) Compute(ctx context.Context) (KPIs, error) {
	now := a.now()
	today := DayOf(now, a.loc)
	window := db.TimeRange{
		Start: today.Previous().Start,
		End:   today.End.Add(-time.Nanosecond),
	}

	readings, err := a.store.ListUsage(ctx, window)
	if err != nil {
		return KPIs{}, fmt.Errorf("failed to load usage for KPIs: %w", err)
	}
	leaks, err := a.store.ListLeaks(ctx, db.TimeRange{})
	if err != nil {
		return KPIs{}, fmt.Errorf("failed to load leaks for KPIs: %w", err)
	}
	tasks, err := a.store.ListMaintenance(ctx, db.TimeRange{})
	if err != nil {
		return KPIs{}, fmt.Errorf("failed to load maintenance for KPIs: %w", err)
	}
	alerts, err := a.store.ListAlerts(ctx, db.TimeRange{})
	if err != nil {
		return KPIs{}, fmt.Errorf("failed to load alerts for KPIs: %w", err)
	}

	out := ComputeKPIs(today, readings, leaks, tasks, alerts)
	out.GeneratedAt = now
	return out, nil
}

// Summary aggregates all records inside r
func (a *Aggregator) Summary(ctx context.Context, r db.TimeRange) (RangeSummary, error) {
	readings, err := a.store.ListUsage(ctx, r)
	if err != nil {
		return RangeSummary{}, fmt.Errorf("failed to load usage for summary: %w", err)
	}
	leaks, err := a.store.ListLeaks(ctx, r)
	if err != nil {
		return RangeSummary{}, fmt.Errorf("failed to load leaks for summary: %w", err)
	}
	tasks, err := a.store.ListMaintenance(ctx, r)
	if err != nil {
		return RangeSummary{}, fmt.Errorf("failed to load maintenance for summary: %w", err)
	}
	alerts, err := a.store.ListAlerts(ctx, r)
	if err != nil {
		return RangeSummary{}, fmt.Errorf("failed to load alerts for summary: %w", err)
	}
	return Summarize(r.Start, r.End, readings, leaks, tasks, alerts), nil
}

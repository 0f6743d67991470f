package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

// ListUsage returns usage readings in the optional [startDate, endDate] range
func (s *Dashboard) ListUsage(ctx context.Context, startDate, endDate string) ([]db.UsageReading, error) {
	r, err := s.validator.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.store.ListUsage(ctx, r)
}

func (s *Dashboard) GetUsage(ctx context.Context, id int64) (*db.UsageReading, error) {
	return s.store.GetUsage(ctx, id)
}

// RecordUsage validates and stores a usage reading from the API
func (s *Dashboard) RecordUsage(ctx context.Context, in validator.UsageInput) (*db.UsageReading, error) {
	reading, err := s.validator.ValidateUsage(in, s.now())
	if err != nil {
		return nil, err
	}
	return s.storeUsage(ctx, reading, "api")
}

// storeUsage persists a validated reading, then checks it against the
// location's recent history and raises a usage_spike alert when it jumps
func (s *Dashboard) storeUsage(ctx context.Context, reading db.UsageReading, source string) (*db.UsageReading, error) {
	var history []float64
	if s.detector != nil {
		var err error
		history, err = s.store.RecentUsageGallons(ctx, reading.Location, s.detector.HistoryWindow())
		if err != nil {
			s.logger.Warn("failed to get usage history for spike detection",
				zap.Error(err),
				zap.String("location", reading.Location),
			)
			history = nil
		}
	}

	created, err := s.store.CreateUsage(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to store usage reading: %w", err)
	}
	s.metrics.ReadingIngested(source)

	s.record(ctx, "usage", "recorded", ActivityUsageRecorded, created.Location, created.ID,
		fmt.Sprintf("Recorded %.2f gallons", created.Gallons), created)

	if s.detector == nil || history == nil {
		return created, nil
	}
	if spike, ok := s.detector.DetectSpike(created.Gallons, history); ok {
		s.metrics.SpikeDetected()
		s.logger.Info("usage spike detected",
			zap.String("location", created.Location),
			zap.Float64("gallons", created.Gallons),
			zap.Float64("average", spike.Average),
		)
		alert := db.Alert{
			Type:      AlertTypeUsageSpike,
			Severity:  db.AlertWarning,
			Location:  created.Location,
			Message:   spike.Message(created.Location),
			Timestamp: created.Timestamp,
		}
		if _, err := s.storeAlert(ctx, alert); err != nil {
			s.logger.Error("failed to raise usage spike alert", zap.Error(err))
		}
	}
	return created, nil
}

func (s *Dashboard) ListLeaks(ctx context.Context, startDate, endDate string) ([]db.Leak, error) {
	r, err := s.validator.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.store.ListLeaks(ctx, r)
}

func (s *Dashboard) GetLeak(ctx context.Context, id int64) (*db.Leak, error) {
	return s.store.GetLeak(ctx, id)
}

// ReportLeak records a newly detected leak
func (s *Dashboard) ReportLeak(ctx context.Context, in validator.LeakInput) (*db.Leak, error) {
	leak, err := s.validator.ValidateLeak(in, s.now())
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateLeak(ctx, leak)
	if err != nil {
		return nil, fmt.Errorf("failed to store leak: %w", err)
	}
	s.record(ctx, "leak", "reported", ActivityLeakReported, created.Location, created.ID,
		fmt.Sprintf("Leak #%d reported with %s severity", created.ID, created.Severity), created)
	return created, nil
}

// UpdateLeak applies a patch. Reopening a resolved leak is rejected.
func (s *Dashboard) UpdateLeak(ctx context.Context, id int64, patch db.LeakPatch) (*db.Leak, error) {
	if err := validator.ValidateLeakPatch(patch); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateLeak(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "leak", "updated", ActivityLeakUpdated, updated.Location, updated.ID,
		describeLeakPatch(updated.ID, patch), updated)
	return updated, nil
}

func (s *Dashboard) ListMaintenance(ctx context.Context, startDate, endDate string) ([]db.MaintenanceTask, error) {
	r, err := s.validator.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.store.ListMaintenance(ctx, r)
}

func (s *Dashboard) GetMaintenance(ctx context.Context, id int64) (*db.MaintenanceTask, error) {
	return s.store.GetMaintenance(ctx, id)
}

// ScheduleMaintenance records a new maintenance task
func (s *Dashboard) ScheduleMaintenance(ctx context.Context, in validator.MaintenanceInput) (*db.MaintenanceTask, error) {
	task, err := s.validator.ValidateMaintenance(in)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateMaintenance(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to store maintenance task: %w", err)
	}
	s.record(ctx, "maintenance", "scheduled", ActivityMaintenanceScheduled, created.Location, created.ID,
		fmt.Sprintf("%s task #%d scheduled", created.TaskType, created.ID), created)
	return created, nil
}

// UpdateMaintenance applies a patch. Status only moves forward.
func (s *Dashboard) UpdateMaintenance(ctx context.Context, id int64, patch db.MaintenancePatch) (*db.MaintenanceTask, error) {
	if err := validator.ValidateMaintenancePatch(patch); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateMaintenance(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "maintenance", "updated", ActivityMaintenanceUpdated, updated.Location, updated.ID,
		describeMaintenancePatch(updated.ID, patch), updated)
	return updated, nil
}

func (s *Dashboard) ListAlerts(ctx context.Context, startDate, endDate string) ([]db.Alert, error) {
	r, err := s.validator.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.store.ListAlerts(ctx, r)
}

func (s *Dashboard) GetAlert(ctx context.Context, id int64) (*db.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// CreateAlert records an operator alert
func (s *Dashboard) CreateAlert(ctx context.Context, in validator.AlertInput) (*db.Alert, error) {
	alert, err := s.validator.ValidateAlert(in, s.now())
	if err != nil {
		return nil, err
	}
	return s.storeAlert(ctx, alert)
}

func (s *Dashboard) storeAlert(ctx context.Context, alert db.Alert) (*db.Alert, error) {
	created, err := s.store.CreateAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	s.record(ctx, "alert", "created", ActivityAlertCreated, created.Location, created.ID,
		fmt.Sprintf("%s %s alert #%d raised", created.Severity, created.Type, created.ID), created)
	return created, nil
}

// MarkAlertRead marks an alert read. Only the call that flips the flag
// records an activity; repeats return the alert unchanged.
func (s *Dashboard) MarkAlertRead(ctx context.Context, id int64) (*db.Alert, error) {
	updated, changed, err := s.store.MarkAlertRead(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}
	s.record(ctx, "alert", "read", ActivityAlertRead, updated.Location, updated.ID,
		fmt.Sprintf("Alert #%d marked read", updated.ID), updated)
	return updated, nil
}

// ListActivities returns the activity trail, newest first. limit <= 0 means
// no limit.
func (s *Dashboard) ListActivities(ctx context.Context, startDate, endDate string, limit int) ([]db.Activity, error) {
	r, err := s.validator.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, r, limit)
}

func describeLeakPatch(id int64, patch db.LeakPatch) string {
	var changes []string
	if patch.Status != nil {
		changes = append(changes, "status "+string(*patch.Status))
	}
	if patch.AssignedTechnician != nil {
		changes = append(changes, "technician "+*patch.AssignedTechnician)
	}
	if patch.Notes != nil {
		changes = append(changes, "notes")
	}
	return describeChanges("Leak", id, changes)
}

func describeMaintenancePatch(id int64, patch db.MaintenancePatch) string {
	var changes []string
	if patch.Status != nil {
		changes = append(changes, "status "+string(*patch.Status))
	}
	if patch.Priority != nil {
		changes = append(changes, "priority "+string(*patch.Priority))
	}
	if patch.AssignedTechnician != nil {
		changes = append(changes, "technician "+*patch.AssignedTechnician)
	}
	if patch.Description != nil {
		changes = append(changes, "description")
	}
	if patch.ScheduledDate != nil {
		changes = append(changes, "schedule")
	}
	if patch.EstimatedDuration != nil {
		changes = append(changes, "duration")
	}
	if patch.Cost != nil {
		changes = append(changes, "cost")
	}
	return describeChanges("Maintenance task", id, changes)
}

func describeChanges(entity string, id int64, changes []string) string {
	if len(changes) == 0 {
		return fmt.Sprintf("%s #%d touched", entity, id)
	}
	return fmt.Sprintf("%s #%d updated: %s", entity, id, strings.Join(changes, ", "))
}

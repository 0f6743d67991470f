package repository

import (
	"context"
	"errors"

	"github.com/septivank/water-ops-service/internal/db"
)

// ErrNotFound is returned when a record id does not exist
var ErrNotFound = errors.New("record not found")

// Store is the record store for every entity kind. List operations return
// records newest first and filter by an inclusive time range.
type Store interface {
	ListUsage(ctx context.Context, r db.TimeRange) ([]db.UsageReading, error)
	GetUsage(ctx context.Context, id int64) (*db.UsageReading, error)
	CreateUsage(ctx context.Context, reading db.UsageReading) (*db.UsageReading, error)
	// RecentUsageGallons returns the gallons of the latest readings at a
	// location, newest first.
	RecentUsageGallons(ctx context.Context, location string, limit int) ([]float64, error)

	ListLeaks(ctx context.Context, r db.TimeRange) ([]db.Leak, error)
	GetLeak(ctx context.Context, id int64) (*db.Leak, error)
	CreateLeak(ctx context.Context, leak db.Leak) (*db.Leak, error)
	UpdateLeak(ctx context.Context, id int64, patch db.LeakPatch) (*db.Leak, error)

	ListMaintenance(ctx context.Context, r db.TimeRange) ([]db.MaintenanceTask, error)
	GetMaintenance(ctx context.Context, id int64) (*db.MaintenanceTask, error)
	CreateMaintenance(ctx context.Context, task db.MaintenanceTask) (*db.MaintenanceTask, error)
	UpdateMaintenance(ctx context.Context, id int64, patch db.MaintenancePatch) (*db.MaintenanceTask, error)

	ListAlerts(ctx context.Context, r db.TimeRange) ([]db.Alert, error)
	GetAlert(ctx context.Context, id int64) (*db.Alert, error)
	CreateAlert(ctx context.Context, alert db.Alert) (*db.Alert, error)
	// MarkAlertRead sets the read flag and reports whether it was unset before.
	MarkAlertRead(ctx context.Context, id int64) (*db.Alert, bool, error)

	// ListActivities returns at most limit entries; limit <= 0 means no limit.
	ListActivities(ctx context.Context, r db.TimeRange, limit int) ([]db.Activity, error)
	AppendActivity(ctx context.Context, activity db.Activity) (*db.Activity, error)

	Ping(ctx context.Context) error
}

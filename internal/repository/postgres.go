package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/water-ops-service/internal/db"
)

// PostgresStore persists records in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a store backed by the given pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// row is satisfied by pgx.Row and pgx.Rows
type row interface {
	Scan(dest ...any) error
}

const usageColumns = `id, reading_time, location, gallons, pressure, flow_rate, temperature, quality_metrics`

func scanUsage(r row) (db.UsageReading, error) {
	var u db.UsageReading
	var metrics []byte
	if err := r.Scan(&u.ID, &u.Timestamp, &u.Location, &u.Gallons, &u.Pressure, &u.FlowRate, &u.Temperature, &metrics); err != nil {
		return u, err
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &u.QualityMetrics); err != nil {
			return u, fmt.Errorf("failed to decode quality metrics: %w", err)
		}
	}
	return u, nil
}

func (s *PostgresStore) ListUsage(ctx context.Context, r db.TimeRange) ([]db.UsageReading, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM water_usage
		WHERE ($1::timestamptz IS NULL OR reading_time >= $1)
		  AND ($2::timestamptz IS NULL OR reading_time <= $2)
		ORDER BY reading_time DESC, id DESC
	`
	start, end := rangeArgs(r)
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query water usage: %w", err)
	}
	defer rows.Close()

	out := []db.UsageReading{}
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan water usage: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, id int64) (*db.UsageReading, error) {
	query := `SELECT ` + usageColumns + ` FROM water_usage WHERE id = $1`
	u, err := scanUsage(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get water usage %d: %w", id, err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUsage(ctx context.Context, reading db.UsageReading) (*db.UsageReading, error) {
	var metrics []byte
	if len(reading.QualityMetrics) > 0 {
		var err error
		if metrics, err = json.Marshal(reading.QualityMetrics); err != nil {
			return nil, fmt.Errorf("failed to encode quality metrics: %w", err)
		}
	}

	query := `
		INSERT INTO water_usage (reading_time, location, gallons, pressure, flow_rate, temperature, quality_metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING ` + usageColumns
	u, err := scanUsage(s.pool.QueryRow(ctx, query,
		reading.Timestamp,
		reading.Location,
		reading.Gallons,
		reading.Pressure,
		reading.FlowRate,
		reading.Temperature,
		nullableJSON(metrics),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert water usage: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) RecentUsageGallons(ctx context.Context, location string, limit int) ([]float64, error) {
	query := `
		SELECT gallons
		FROM water_usage
		WHERE location = $1
		ORDER BY reading_time DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, location, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return values, nil
}

const leakColumns = `id, location, severity, status, detected_at, estimated_gallons_lost, assigned_technician, notes`

func scanLeak(r row) (db.Leak, error) {
	var l db.Leak
	err := r.Scan(&l.ID, &l.Location, &l.Severity, &l.Status, &l.DetectedAt, &l.EstimatedGallonsLost, &l.AssignedTechnician, &l.Notes)
	return l, err
}

func (s *PostgresStore) ListLeaks(ctx context.Context, r db.TimeRange) ([]db.Leak, error) {
	query := `
		SELECT ` + leakColumns + `
		FROM leaks
		WHERE ($1::timestamptz IS NULL OR detected_at >= $1)
		  AND ($2::timestamptz IS NULL OR detected_at <= $2)
		ORDER BY detected_at DESC, id DESC
	`
	start, end := rangeArgs(r)
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaks: %w", err)
	}
	defer rows.Close()

	out := []db.Leak{}
	for rows.Next() {
		l, err := scanLeak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leak: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetLeak(ctx context.Context, id int64) (*db.Leak, error) {
	l, err := scanLeak(s.pool.QueryRow(ctx, `SELECT `+leakColumns+` FROM leaks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leak %d: %w", id, err)
	}
	return &l, nil
}

func (s *PostgresStore) CreateLeak(ctx context.Context, leak db.Leak) (*db.Leak, error) {
	query := `
		INSERT INTO leaks (location, severity, status, detected_at, estimated_gallons_lost, assigned_technician, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + leakColumns
	l, err := scanLeak(s.pool.QueryRow(ctx, query,
		leak.Location,
		leak.Severity,
		leak.Status,
		leak.DetectedAt,
		leak.EstimatedGallonsLost,
		leak.AssignedTechnician,
		leak.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert leak: %w", err)
	}
	return &l, nil
}

// UpdateLeak locks the row for the duration of the transaction so concurrent
// patches to the same leak apply one after another.
func (s *PostgresStore) UpdateLeak(ctx context.Context, id int64, patch db.LeakPatch) (*db.Leak, error) {
	var updated db.Leak
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanLeak(tx.QueryRow(ctx, `SELECT `+leakColumns+` FROM leaks WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock leak %d: %w", id, err)
		}

		next, err := db.ApplyLeakPatch(current, patch)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE leaks
			SET status = $1, assigned_technician = $2, notes = $3
			WHERE id = $4
		`, next.Status, next.AssignedTechnician, next.Notes, id)
		if err != nil {
			return fmt.Errorf("failed to update leak %d: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

const maintenanceColumns = `id, task_type, location, priority, status, scheduled_date, completed_date, assigned_technician, description, estimated_duration, cost`

func scanMaintenance(r row) (db.MaintenanceTask, error) {
	var m db.MaintenanceTask
	err := r.Scan(&m.ID, &m.TaskType, &m.Location, &m.Priority, &m.Status, &m.ScheduledDate, &m.CompletedDate,
		&m.AssignedTechnician, &m.Description, &m.EstimatedDuration, &m.Cost)
	return m, err
}

func (s *PostgresStore) ListMaintenance(ctx context.Context, r db.TimeRange) ([]db.MaintenanceTask, error) {
	query := `
		SELECT ` + maintenanceColumns + `
		FROM maintenance_tasks
		WHERE ($1::timestamptz IS NULL OR scheduled_date >= $1)
		  AND ($2::timestamptz IS NULL OR scheduled_date <= $2)
		ORDER BY scheduled_date DESC, id DESC
	`
	start, end := rangeArgs(r)
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance tasks: %w", err)
	}
	defer rows.Close()

	out := []db.MaintenanceTask{}
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan maintenance task: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetMaintenance(ctx context.Context, id int64) (*db.MaintenanceTask, error) {
	m, err := scanMaintenance(s.pool.QueryRow(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get maintenance task %d: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) CreateMaintenance(ctx context.Context, task db.MaintenanceTask) (*db.MaintenanceTask, error) {
	if task.Status == db.MaintenanceCompleted {
		if task.CompletedDate == nil {
			now := s.now()
			task.CompletedDate = &now
		}
	} else {
		task.CompletedDate = nil
	}

	query := `
		INSERT INTO maintenance_tasks (
			task_type, location, priority, status, scheduled_date, completed_date,
			assigned_technician, description, estimated_duration, cost
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + maintenanceColumns
	m, err := scanMaintenance(s.pool.QueryRow(ctx, query,
		task.TaskType,
		task.Location,
		task.Priority,
		task.Status,
		task.ScheduledDate,
		task.CompletedDate,
		task.AssignedTechnician,
		task.Description,
		task.EstimatedDuration,
		task.Cost,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert maintenance task: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateMaintenance(ctx context.Context, id int64, patch db.MaintenancePatch) (*db.MaintenanceTask, error) {
	var updated db.MaintenanceTask
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanMaintenance(tx.QueryRow(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_tasks WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock maintenance task %d: %w", id, err)
		}

		next, err := db.ApplyMaintenancePatch(current, patch, s.now())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE maintenance_tasks
			SET priority = $1, status = $2, scheduled_date = $3, completed_date = $4,
			    assigned_technician = $5, description = $6, estimated_duration = $7, cost = $8
			WHERE id = $9
		`, next.Priority, next.Status, next.ScheduledDate, next.CompletedDate,
			next.AssignedTechnician, next.Description, next.EstimatedDuration, next.Cost, id)
		if err != nil {
			return fmt.Errorf("failed to update maintenance task %d: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

const alertColumns = `id, alert_type, severity, location, message, alert_time, is_read`

const qualifiedAlertColumns = `alerts.id, alerts.alert_type, alerts.severity, alerts.location, alerts.message, alerts.alert_time, alerts.is_read`

func scanAlert(r row) (db.Alert, error) {
	var a db.Alert
	err := r.Scan(&a.ID, &a.Type, &a.Severity, &a.Location, &a.Message, &a.Timestamp, &a.IsRead)
	return a, err
}

func (s *PostgresStore) ListAlerts(ctx context.Context, r db.TimeRange) ([]db.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ($1::timestamptz IS NULL OR alert_time >= $1)
		  AND ($2::timestamptz IS NULL OR alert_time <= $2)
		ORDER BY alert_time DESC, id DESC
	`
	start, end := rangeArgs(r)
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	out := []db.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id int64) (*db.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, alert db.Alert) (*db.Alert, error) {
	query := `
		INSERT INTO alerts (alert_type, severity, location, message, alert_time, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + alertColumns
	a, err := scanAlert(s.pool.QueryRow(ctx, query,
		alert.Type, alert.Severity, alert.Location, alert.Message, alert.Timestamp, alert.IsRead))
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	return &a, nil
}

// MarkAlertRead locks the row while reading the previous flag, so of two
// concurrent calls only one sees it flip.
func (s *PostgresStore) MarkAlertRead(ctx context.Context, id int64) (*db.Alert, bool, error) {
	query := `
		WITH prev AS (
			SELECT is_read AS was_read FROM alerts WHERE id = $1 FOR UPDATE
		)
		UPDATE alerts SET is_read = TRUE
		FROM prev
		WHERE alerts.id = $1
		RETURNING ` + qualifiedAlertColumns + `, NOT prev.was_read
	`
	var a db.Alert
	var changed bool
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Type, &a.Severity, &a.Location, &a.Message, &a.Timestamp, &a.IsRead, &changed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark alert %d read: %w", id, err)
	}
	return &a, changed, nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, r db.TimeRange, limit int) ([]db.Activity, error) {
	query := `
		SELECT id, event_type, location, activity_time, details
		FROM activities
		WHERE ($1::timestamptz IS NULL OR activity_time >= $1)
		  AND ($2::timestamptz IS NULL OR activity_time <= $2)
		ORDER BY activity_time DESC, id DESC
		LIMIT $3
	`
	start, end := rangeArgs(r)
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, query, start, end, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	out := []db.Activity{}
	for rows.Next() {
		var a db.Activity
		if err := rows.Scan(&a.ID, &a.EventType, &a.Location, &a.Timestamp, &a.Details); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendActivity(ctx context.Context, activity db.Activity) (*db.Activity, error) {
	query := `
		INSERT INTO activities (event_type, location, activity_time, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.pool.QueryRow(ctx, query, activity.EventType, activity.Location, activity.Timestamp, activity.Details).Scan(&activity.ID); err != nil {
		return nil, fmt.Errorf("failed to insert activity: %w", err)
	}
	return &activity, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inTx runs fn in a transaction, committing on success
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rangeArgs maps open bounds to NULL query parameters
func rangeArgs(r db.TimeRange) (any, any) {
	var start, end any
	if !r.Start.IsZero() {
		start = r.Start
	}
	if !r.End.IsZero() {
		end = r.End
	}
	return start, end
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
)

// MemoryStore keeps records in process memory. It backs demo mode when no
// database is configured and is the store used by tests.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	usage       []db.UsageReading
	leaks       map[int64]*db.Leak
	maintenance map[int64]*db.MaintenanceTask
	alerts      map[int64]*db.Alert
	activities  []db.Activity

	nextUsage       int64
	nextLeak        int64
	nextMaintenance int64
	nextAlert       int64
	nextActivity    int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an empty store that stamps completion
// dates using now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:         now,
		leaks:       make(map[int64]*db.Leak),
		maintenance: make(map[int64]*db.MaintenanceTask),
		alerts:      make(map[int64]*db.Alert),
	}
}

func (s *MemoryStore) ListUsage(ctx context.Context, r db.TimeRange) ([]db.UsageReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]db.UsageReading, 0, len(s.usage))
	for _, u := range s.usage {
		if r.Contains(u.Timestamp) {
			out = append(out, copyUsage(u))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[j].Timestamp, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) GetUsage(ctx context.Context, id int64) (*db.UsageReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usage {
		if u.ID == id {
			c := copyUsage(u)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateUsage(ctx context.Context, reading db.UsageReading) (*db.UsageReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUsage++
	reading.ID = s.nextUsage
	reading = copyUsage(reading)
	s.usage = append(s.usage, reading)

	c := copyUsage(reading)
	return &c, nil
}

func (s *MemoryStore) RecentUsageGallons(ctx context.Context, location string, limit int) ([]float64, error) {
	readings, err := s.ListUsage(ctx, db.TimeRange{})
	if err != nil {
		return nil, err
	}

	var values []float64
	for _, u := range readings {
		if u.Location != location {
			continue
		}
		if limit > 0 && len(values) >= limit {
			break
		}
		values = append(values, u.Gallons)
	}
	return values, nil
}

func (s *MemoryStore) ListLeaks(ctx context.Context, r db.TimeRange) ([]db.Leak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]db.Leak, 0, len(s.leaks))
	for _, l := range s.leaks {
		if r.Contains(l.DetectedAt) {
			out = append(out, copyLeak(*l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].DetectedAt, out[j].DetectedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) GetLeak(ctx context.Context, id int64) (*db.Leak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leaks[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyLeak(*l)
	return &c, nil
}

func (s *MemoryStore) CreateLeak(ctx context.Context, leak db.Leak) (*db.Leak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLeak++
	leak.ID = s.nextLeak
	stored := copyLeak(leak)
	s.leaks[leak.ID] = &stored
	c := copyLeak(leak)
	return &c, nil
}

func (s *MemoryStore) UpdateLeak(ctx context.Context, id int64, patch db.LeakPatch) (*db.Leak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leaks[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := db.ApplyLeakPatch(*current, patch)
	if err != nil {
		return nil, err
	}
	*current = copyLeak(next)
	c := copyLeak(next)
	return &c, nil
}

func (s *MemoryStore) ListMaintenance(ctx context.Context, r db.TimeRange) ([]db.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]db.MaintenanceTask, 0, len(s.maintenance))
	for _, m := range s.maintenance {
		if r.Contains(m.ScheduledDate) {
			out = append(out, copyMaintenance(*m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].ScheduledDate, out[j].ScheduledDate, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) GetMaintenance(ctx context.Context, id int64) (*db.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.maintenance[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyMaintenance(*m)
	return &c, nil
}

func (s *MemoryStore) CreateMaintenance(ctx context.Context, task db.MaintenanceTask) (*db.MaintenanceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMaintenance++
	task.ID = s.nextMaintenance
	if task.Status == db.MaintenanceCompleted {
		if task.CompletedDate == nil {
			completed := s.now()
			task.CompletedDate = &completed
		}
	} else {
		task.CompletedDate = nil
	}
	stored := copyMaintenance(task)
	s.maintenance[task.ID] = &stored
	c := copyMaintenance(task)
	return &c, nil
}

func (s *MemoryStore) UpdateMaintenance(ctx context.Context, id int64, patch db.MaintenancePatch) (*db.MaintenanceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.maintenance[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := db.ApplyMaintenancePatch(*current, patch, s.now())
	if err != nil {
		return nil, err
	}
	*current = copyMaintenance(next)
	c := copyMaintenance(next)
	return &c, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, r db.TimeRange) ([]db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]db.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if r.Contains(a.Timestamp) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[j].Timestamp, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id int64) (*db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) CreateAlert(ctx context.Context, alert db.Alert) (*db.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAlert++
	alert.ID = s.nextAlert
	stored := alert
	s.alerts[alert.ID] = &stored
	return &alert, nil
}

func (s *MemoryStore) MarkAlertRead(ctx context.Context, id int64) (*db.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	changed := !a.IsRead
	a.IsRead = true
	c := *a
	return &c, changed, nil
}

func (s *MemoryStore) ListActivities(ctx context.Context, r db.TimeRange, limit int) ([]db.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]db.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		if r.Contains(a.Timestamp) {
			out = append(out, copyActivity(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[j].Timestamp, out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendActivity(ctx context.Context, activity db.Activity) (*db.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextActivity++
	activity.ID = s.nextActivity
	s.activities = append(s.activities, copyActivity(activity))
	c := copyActivity(activity)
	return &c, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// newerFirst orders by timestamp descending, falling back to id descending
// so records with equal timestamps keep a stable order.
func newerFirst(a, b time.Time, idA, idB int64) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA > idB
}

// The copy helpers clone pointer and map fields so records handed out never
// alias what the store holds.

func copyUsage(u db.UsageReading) db.UsageReading {
	u.Temperature = clonePtr(u.Temperature)
	if u.QualityMetrics != nil {
		metrics := make(map[string]float64, len(u.QualityMetrics))
		for k, v := range u.QualityMetrics {
			metrics[k] = v
		}
		u.QualityMetrics = metrics
	}
	return u
}

func copyLeak(l db.Leak) db.Leak {
	l.EstimatedGallonsLost = clonePtr(l.EstimatedGallonsLost)
	l.AssignedTechnician = clonePtr(l.AssignedTechnician)
	l.Notes = clonePtr(l.Notes)
	return l
}

func copyMaintenance(m db.MaintenanceTask) db.MaintenanceTask {
	m.CompletedDate = clonePtr(m.CompletedDate)
	m.EstimatedDuration = clonePtr(m.EstimatedDuration)
	m.Cost = clonePtr(m.Cost)
	return m
}

func copyActivity(a db.Activity) db.Activity {
	a.Details = clonePtr(a.Details)
	return a
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

package db

import (
	"fmt"
	"time"
)

// LeakSeverity is the closed set of leak severities
type LeakSeverity string

const (
	LeakSeverityLow      LeakSeverity = "low"
	LeakSeverityMedium   LeakSeverity = "medium"
	LeakSeverityCritical LeakSeverity = "critical"
)

func (s LeakSeverity) Valid() bool {
	switch s {
	case LeakSeverityLow, LeakSeverityMedium, LeakSeverityCritical:
		return true
	}
	return false
}

// LeakStatus is the lifecycle state of a leak. Resolved is terminal.
type LeakStatus string

const (
	LeakStatusActive        LeakStatus = "active"
	LeakStatusInvestigating LeakStatus = "investigating"
	LeakStatusResolved      LeakStatus = "resolved"
)

func (s LeakStatus) Valid() bool {
	switch s {
	case LeakStatusActive, LeakStatusInvestigating, LeakStatusResolved:
		return true
	}
	return false
}

// Open reports whether the leak still counts as active on the dashboard
func (s LeakStatus) Open() bool {
	return s == LeakStatusActive || s == LeakStatusInvestigating
}

// MaintenancePriority is the closed set of task priorities
type MaintenancePriority string

const (
	PriorityLow      MaintenancePriority = "low"
	PriorityNormal   MaintenancePriority = "normal"
	PriorityHigh     MaintenancePriority = "high"
	PriorityCritical MaintenancePriority = "critical"
)

func (p MaintenancePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// MaintenanceStatus only moves forward: pending, in_progress, completed
type MaintenanceStatus string

const (
	MaintenancePending    MaintenanceStatus = "pending"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
)

func (s MaintenanceStatus) Valid() bool {
	return s.rank() >= 0
}

func (s MaintenanceStatus) rank() int {
	switch s {
	case MaintenancePending:
		return 0
	case MaintenanceInProgress:
		return 1
	case MaintenanceCompleted:
		return 2
	}
	return -1
}

// AlertSeverity is the closed set of alert severities
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertInfo, AlertWarning, AlertCritical:
		return true
	}
	return false
}

// UsageReading is a single meter sample. Immutable once recorded.
type UsageReading struct {
	ID             int64              `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	Location       string             `json:"location"`
	Gallons        float64            `json:"gallons"`
	Pressure       float64            `json:"pressure"`
	FlowRate       float64            `json:"flowRate"`
	Temperature    *float64           `json:"temperature,omitempty"`
	QualityMetrics map[string]float64 `json:"qualityMetrics,omitempty"`
}

// Leak represents a detected leak in the distribution network
type Leak struct {
	ID                   int64        `json:"id"`
	Location             string       `json:"location"`
	Severity             LeakSeverity `json:"severity"`
	Status               LeakStatus   `json:"status"`
	DetectedAt           time.Time    `json:"detectedAt"`
	EstimatedGallonsLost *float64     `json:"estimatedGallonsLost,omitempty"`
	AssignedTechnician   *string      `json:"assignedTechnician,omitempty"`
	Notes                *string      `json:"notes,omitempty"`
}

// MaintenanceTask represents scheduled field work
type MaintenanceTask struct {
	ID                 int64               `json:"id"`
	TaskType           string              `json:"taskType"`
	Location           string              `json:"location"`
	Priority           MaintenancePriority `json:"priority"`
	Status             MaintenanceStatus   `json:"status"`
	ScheduledDate      time.Time           `json:"scheduledDate"`
	CompletedDate      *time.Time          `json:"completedDate,omitempty"`
	AssignedTechnician string              `json:"assignedTechnician"`
	Description        string              `json:"description"`
	EstimatedDuration  *float64            `json:"estimatedDuration,omitempty"`
	Cost               *float64            `json:"cost,omitempty"`
}

// Alert is an operator notification. The read flag only goes false to true.
type Alert struct {
	ID        int64         `json:"id"`
	Type      string        `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Location  string        `json:"location"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	IsRead    bool          `json:"isRead"`
}

// Activity is an append-only log entry
type Activity struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Details   *string   `json:"details,omitempty"`
}

// TimeRange is an inclusive [Start, End] filter. A zero bound is open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, both ends inclusive
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// LeakPatch carries the mutable leak fields. Nil fields are left untouched.
type LeakPatch struct {
	Status             *LeakStatus `json:"status,omitempty"`
	AssignedTechnician *string     `json:"assignedTechnician,omitempty"`
	Notes              *string     `json:"notes,omitempty"`
}

// MaintenancePatch carries the mutable task fields. Nil fields are left untouched.
type MaintenancePatch struct {
	Status             *MaintenanceStatus   `json:"status,omitempty"`
	Priority           *MaintenancePriority `json:"priority,omitempty"`
	AssignedTechnician *string              `json:"assignedTechnician,omitempty"`
	Description        *string              `json:"description,omitempty"`
	ScheduledDate      *time.Time           `json:"scheduledDate,omitempty"`
	EstimatedDuration  *float64             `json:"estimatedDuration,omitempty"`
	Cost               *float64             `json:"cost,omitempty"`
}

// TransitionError reports a status change the lifecycle does not allow
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

// ApplyLeakPatch returns the leak with patch applied. Stores call it while
// holding the record's lock.
func ApplyLeakPatch(current Leak, patch LeakPatch) (Leak, error) {
	next := current
	if patch.Status != nil {
		if current.Status == LeakStatusResolved && *patch.Status != LeakStatusResolved {
			return current, &TransitionError{Entity: "leak", From: string(current.Status), To: string(*patch.Status)}
		}
		next.Status = *patch.Status
	}
	if patch.AssignedTechnician != nil {
		tech := *patch.AssignedTechnician
		next.AssignedTechnician = &tech
	}
	if patch.Notes != nil {
		notes := *patch.Notes
		next.Notes = &notes
	}
	return next, nil
}

// ApplyMaintenancePatch returns the task with patch applied. CompletedDate is
// stamped with now exactly when the task becomes completed.
func ApplyMaintenancePatch(current MaintenanceTask, patch MaintenancePatch, now time.Time) (MaintenanceTask, error) {
	next := current
	if patch.Status != nil {
		to := *patch.Status
		if to.rank() < current.Status.rank() {
			return current, &TransitionError{Entity: "maintenance task", From: string(current.Status), To: string(to)}
		}
		if to == MaintenanceCompleted && current.Status != MaintenanceCompleted {
			completed := now
			next.CompletedDate = &completed
		}
		next.Status = to
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.AssignedTechnician != nil {
		next.AssignedTechnician = *patch.AssignedTechnician
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.ScheduledDate != nil {
		next.ScheduledDate = *patch.ScheduledDate
	}
	if patch.EstimatedDuration != nil {
		d := *patch.EstimatedDuration
		next.EstimatedDuration = &d
	}
	if patch.Cost != nil {
		c := *patch.Cost
		next.Cost = &c
	}
	if next.Status != MaintenanceCompleted {
		next.CompletedDate = nil
	}
	return next, nil
}

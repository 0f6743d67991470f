package validator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/tools/timeparser"
)

// ErrInvalidRange is returned when a range ends before it starts
var ErrInvalidRange = errors.New("endDate is before startDate")

// ValidationError describes a single rejected input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UsageInput is a usage reading as received from HTTP or the ingest queue.
// Numeric fields accept JSON numbers or numeric strings.
type UsageInput struct {
	Timestamp      string             `json:"timestamp"`
	Location       string             `json:"location"`
	Gallons        any                `json:"gallons"`
	Pressure       any                `json:"pressure"`
	FlowRate       any                `json:"flowRate"`
	Temperature    any                `json:"temperature,omitempty"`
	QualityMetrics map[string]float64 `json:"qualityMetrics,omitempty"`
}

// LeakInput is the body of a leak report
type LeakInput struct {
	Location             string `json:"location"`
	Severity             string `json:"severity"`
	Status               string `json:"status,omitempty"`
	DetectedAt           string `json:"detectedAt,omitempty"`
	EstimatedGallonsLost any    `json:"estimatedGallonsLost,omitempty"`
	AssignedTechnician   string `json:"assignedTechnician,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

// MaintenanceInput is the body of a new maintenance task
type MaintenanceInput struct {
	TaskType           string `json:"taskType"`
	Location           string `json:"location"`
	Priority           string `json:"priority,omitempty"`
	Status             string `json:"status,omitempty"`
	ScheduledDate      string `json:"scheduledDate"`
	AssignedTechnician string `json:"assignedTechnician"`
	Description        string `json:"description"`
	EstimatedDuration  any    `json:"estimatedDuration,omitempty"`
	Cost               any    `json:"cost,omitempty"`
}

// AlertInput is the body of a new alert
type AlertInput struct {
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Location  string `json:"location"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Validator turns raw inputs into records
type Validator struct {
	loc                    *time.Location
	futureToleranceMinutes int
}

// NewValidator creates a validator that reads zone-less dates in loc and
// rejects readings stamped more than futureToleranceMinutes ahead of receipt
func NewValidator(loc *time.Location, futureToleranceMinutes int) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{loc: loc, futureToleranceMinutes: futureToleranceMinutes}
}

// ValidateUsage validates a usage reading. A missing timestamp means receivedAt.
func (v *Validator) ValidateUsage(in UsageInput, receivedAt time.Time) (db.UsageReading, error) {
	var reading db.UsageReading

	location := strings.TrimSpace(in.Location)
	if location == "" {
		return reading, invalid("location", "must not be empty")
	}

	gallons, err := requiredNumber("gallons", in.Gallons)
	if err != nil {
		return reading, err
	}
	if gallons < 0 {
		return reading, invalid("gallons", "negative value detected")
	}
	pressure, err := requiredNumber("pressure", in.Pressure)
	if err != nil {
		return reading, err
	}
	if pressure < 0 {
		return reading, invalid("pressure", "negative value detected")
	}
	flowRate, err := requiredNumber("flowRate", in.FlowRate)
	if err != nil {
		return reading, err
	}
	temperature, err := optionalNumber("temperature", in.Temperature)
	if err != nil {
		return reading, err
	}

	timestamp := receivedAt
	if strings.TrimSpace(in.Timestamp) != "" {
		timestamp, err = timeparser.ParseTimestamp(in.Timestamp, v.loc)
		if err != nil {
			return reading, invalid("timestamp", "%v", err)
		}
		if timeparser.IsFutureBeyond(timestamp, receivedAt, v.futureToleranceMinutes) {
			return reading, invalid("timestamp", "more than %d minutes in the future", v.futureToleranceMinutes)
		}
	}

	reading = db.UsageReading{
		Timestamp:      timestamp,
		Location:       location,
		Gallons:        gallons,
		Pressure:       pressure,
		FlowRate:       flowRate,
		Temperature:    temperature,
		QualityMetrics: in.QualityMetrics,
	}
	return reading, nil
}

// ValidateLeak validates a leak report. Status defaults to active and
// detectedAt to now.
func (v *Validator) ValidateLeak(in LeakInput, now time.Time) (db.Leak, error) {
	var leak db.Leak

	location := strings.TrimSpace(in.Location)
	if location == "" {
		return leak, invalid("location", "must not be empty")
	}
	severity := db.LeakSeverity(in.Severity)
	if !severity.Valid() {
		return leak, invalid("severity", "must be one of low, medium, critical")
	}
	status := db.LeakStatusActive
	if in.Status != "" {
		status = db.LeakStatus(in.Status)
		if !status.Valid() {
			return leak, invalid("status", "must be one of active, investigating, resolved")
		}
	}
	detectedAt := now
	if in.DetectedAt != "" {
		var err error
		if detectedAt, err = timeparser.ParseTimestamp(in.DetectedAt, v.loc); err != nil {
			return leak, invalid("detectedAt", "%v", err)
		}
	}
	lost, err := optionalNumber("estimatedGallonsLost", in.EstimatedGallonsLost)
	if err != nil {
		return leak, err
	}

	leak = db.Leak{
		Location:             location,
		Severity:             severity,
		Status:               status,
		DetectedAt:           detectedAt,
		EstimatedGallonsLost: lost,
		AssignedTechnician:   optionalString(in.AssignedTechnician),
		Notes:                optionalString(in.Notes),
	}
	return leak, nil
}

// ValidateLeakPatch checks the enum fields of a leak patch
func ValidateLeakPatch(patch db.LeakPatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return invalid("status", "must be one of active, investigating, resolved")
	}
	return nil
}

// ValidateMaintenance validates a new maintenance task
func (v *Validator) ValidateMaintenance(in MaintenanceInput) (db.MaintenanceTask, error) {
	var task db.MaintenanceTask

	if strings.TrimSpace(in.TaskType) == "" {
		return task, invalid("taskType", "must not be empty")
	}
	if strings.TrimSpace(in.Location) == "" {
		return task, invalid("location", "must not be empty")
	}
	priority := db.PriorityNormal
	if in.Priority != "" {
		priority = db.MaintenancePriority(in.Priority)
		if !priority.Valid() {
			return task, invalid("priority", "must be one of low, normal, high, critical")
		}
	}
	status := db.MaintenancePending
	if in.Status != "" {
		status = db.MaintenanceStatus(in.Status)
		if !status.Valid() {
			return task, invalid("status", "must be one of pending, in_progress, completed")
		}
	}
	if strings.TrimSpace(in.ScheduledDate) == "" {
		return task, invalid("scheduledDate", "must not be empty")
	}
	scheduled, err := timeparser.ParseTimestamp(in.ScheduledDate, v.loc)
	if err != nil {
		return task, invalid("scheduledDate", "%v", err)
	}
	duration, err := optionalNumber("estimatedDuration", in.EstimatedDuration)
	if err != nil {
		return task, err
	}
	if duration != nil && *duration < 0 {
		return task, invalid("estimatedDuration", "negative value detected")
	}
	cost, err := optionalNumber("cost", in.Cost)
	if err != nil {
		return task, err
	}
	if cost != nil && *cost < 0 {
		return task, invalid("cost", "negative value detected")
	}

	task = db.MaintenanceTask{
		TaskType:           strings.TrimSpace(in.TaskType),
		Location:           strings.TrimSpace(in.Location),
		Priority:           priority,
		Status:             status,
		ScheduledDate:      scheduled,
		AssignedTechnician: in.AssignedTechnician,
		Description:        in.Description,
		EstimatedDuration:  duration,
		Cost:               cost,
	}
	return task, nil
}

// ValidateMaintenancePatch checks the enum and numeric fields of a task patch
func ValidateMaintenancePatch(patch db.MaintenancePatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return invalid("status", "must be one of pending, in_progress, completed")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return invalid("priority", "must be one of low, normal, high, critical")
	}
	if patch.EstimatedDuration != nil && *patch.EstimatedDuration < 0 {
		return invalid("estimatedDuration", "negative value detected")
	}
	if patch.Cost != nil && *patch.Cost < 0 {
		return invalid("cost", "negative value detected")
	}
	return nil
}

// ValidateAlert validates a new alert. A missing timestamp means now.
func (v *Validator) ValidateAlert(in AlertInput, now time.Time) (db.Alert, error) {
	var alert db.Alert

	if strings.TrimSpace(in.Type) == "" {
		return alert, invalid("type", "must not be empty")
	}
	severity := db.AlertSeverity(in.Severity)
	if !severity.Valid() {
		return alert, invalid("severity", "must be one of info, warning, critical")
	}
	if strings.TrimSpace(in.Message) == "" {
		return alert, invalid("message", "must not be empty")
	}
	timestamp := now
	if in.Timestamp != "" {
		var err error
		if timestamp, err = timeparser.ParseTimestamp(in.Timestamp, v.loc); err != nil {
			return alert, invalid("timestamp", "%v", err)
		}
	}

	alert = db.Alert{
		Type:      strings.TrimSpace(in.Type),
		Severity:  severity,
		Location:  strings.TrimSpace(in.Location),
		Message:   in.Message,
		Timestamp: timestamp,
	}
	return alert, nil
}

// ParseDateRange parses optional startDate/endDate filter values. Either bound
// may be empty. A date-only end covers its whole day.
func (v *Validator) ParseDateRange(startDate, endDate string) (db.TimeRange, error) {
	var r db.TimeRange
	var err error

	if strings.TrimSpace(startDate) != "" {
		if r.Start, err = timeparser.ParseRangeStart(startDate, v.loc); err != nil {
			return r, invalid("startDate", "%v", err)
		}
	}
	if strings.TrimSpace(endDate) != "" {
		if r.End, err = timeparser.ParseRangeEnd(endDate, v.loc); err != nil {
			return r, invalid("endDate", "%v", err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("%w: %s < %s", ErrInvalidRange, endDate, startDate)
	}
	return r, nil
}

// ParseReportRange is ParseDateRange for reports, where both bounds are required
func (v *Validator) ParseReportRange(startDate, endDate string) (db.TimeRange, error) {
	if strings.TrimSpace(startDate) == "" {
		return db.TimeRange{}, invalid("startDate", "must not be empty")
	}
	if strings.TrimSpace(endDate) == "" {
		return db.TimeRange{}, invalid("endDate", "must not be empty")
	}
	return v.ParseDateRange(startDate, endDate)
}

func requiredNumber(field string, raw any) (float64, error) {
	value, err := optionalNumber(field, raw)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, invalid(field, "is required")
	}
	return *value, nil
}

func optionalNumber(field string, raw any) (*float64, error) {
	var value float64
	switch n := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		value = n
	case int:
		value = float64(n)
	case string:
		s := strings.TrimSpace(strings.Trim(n, "[]"))
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid(field, "not a number: %q", n)
		}
		value = parsed
	default:
		return nil, invalid(field, "not a number: %v", raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, invalid(field, "must be finite")
	}
	return &value, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

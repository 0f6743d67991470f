package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/septivank/water-ops-service/internal/db"
)

const testFutureToleranceMinutes = 5

var receivedAt = time.Date(2026, 10, 19, 10, 32, 0, 0, time.UTC)

func TestValidateUsage_ValidData(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	in := UsageInput{
		Timestamp: "2026-10-19T10:30:00Z",
		Location:  "Zone A",
		Gallons:   245.5,
		Pressure:  "62.1",
		FlowRate:  12.0,
	}

	reading, err := v.ValidateUsage(in, receivedAt)
	if err != nil {
		t.Fatalf("Expected valid reading, got %v", err)
	}
	if reading.Gallons != 245.5 {
		t.Errorf("Expected gallons 245.5, got %f", reading.Gallons)
	}
	if reading.Pressure != 62.1 {
		t.Errorf("Expected pressure 62.1, got %f", reading.Pressure)
	}
	expectedTime := time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)
	if !reading.Timestamp.Equal(expectedTime) {
		t.Errorf("Expected timestamp %v, got %v", expectedTime, reading.Timestamp)
	}
	if reading.Temperature != nil {
		t.Errorf("Expected no temperature, got %v", *reading.Temperature)
	}
}

func TestValidateUsage_NonNumericGallons(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateUsage(UsageInput{Location: "Zone A", Gallons: "lots", Pressure: 60, FlowRate: 10}, receivedAt)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if ve.Field != "gallons" {
		t.Errorf("Expected field gallons, got %q", ve.Field)
	}
}

func TestValidateUsage_NegativeValue(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateUsage(UsageInput{Location: "Zone A", Gallons: -10.5, Pressure: 60, FlowRate: 10}, receivedAt)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if ve.Reason != "negative value detected" {
		t.Errorf("Expected 'negative value detected', got '%s'", ve.Reason)
	}
}

func TestValidateUsage_EmptyLocation(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateUsage(UsageInput{Gallons: 1, Pressure: 60, FlowRate: 10}, receivedAt)

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "location" {
		t.Errorf("Expected location ValidationError, got %v", err)
	}
}

func TestValidateUsage_MissingPressure(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateUsage(UsageInput{Location: "Zone A", Gallons: 1, FlowRate: 10}, receivedAt)

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "pressure" {
		t.Errorf("Expected pressure ValidationError, got %v", err)
	}
}

func TestValidateUsage_FutureTimestamp(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	in := UsageInput{Timestamp: "2026-10-19T10:45:00Z", Location: "Zone A", Gallons: 1, Pressure: 60, FlowRate: 10}

	if _, err := v.ValidateUsage(in, receivedAt); err == nil {
		t.Error("Expected error for reading stamped in the future")
	}
}

func TestValidateUsage_DefaultsTimestampToReceipt(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	reading, err := v.ValidateUsage(UsageInput{Location: "Zone A", Gallons: 1, Pressure: 60, FlowRate: 10}, receivedAt)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reading.Timestamp.Equal(receivedAt) {
		t.Errorf("Expected timestamp %v, got %v", receivedAt, reading.Timestamp)
	}
}

func TestValidateLeak_Defaults(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	leak, err := v.ValidateLeak(LeakInput{Location: "Main St", Severity: "medium"}, receivedAt)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if leak.Status != db.LeakStatusActive {
		t.Errorf("Expected default status active, got %s", leak.Status)
	}
	if !leak.DetectedAt.Equal(receivedAt) {
		t.Errorf("Expected detectedAt to default to now")
	}
	if leak.AssignedTechnician != nil || leak.EstimatedGallonsLost != nil {
		t.Error("Expected optional fields to be absent")
	}
}

func TestValidateLeak_UnknownSeverity(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateLeak(LeakInput{Location: "Main St", Severity: "catastrophic"}, receivedAt)

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "severity" {
		t.Errorf("Expected severity ValidationError, got %v", err)
	}
}

func TestValidateMaintenance_RequiresScheduledDate(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ValidateMaintenance(MaintenanceInput{TaskType: "flush", Location: "Hydrant 7"})

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "scheduledDate" {
		t.Errorf("Expected scheduledDate ValidationError, got %v", err)
	}
}

func TestValidateMaintenancePatch_UnknownStatus(t *testing.T) {
	status := db.MaintenanceStatus("done")

	err := ValidateMaintenancePatch(db.MaintenancePatch{Status: &status})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestValidateAlert_Valid(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	alert, err := v.ValidateAlert(AlertInput{Type: "pressure_drop", Severity: "warning", Location: "Zone B", Message: "Pressure below 40 psi"}, receivedAt)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if alert.IsRead {
		t.Error("Expected new alert to be unread")
	}
}

func TestParseDateRange_Inverted(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ParseDateRange("2026-10-19", "2026-10-18")

	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestParseDateRange_SameDayIsValid(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	r, err := v.ParseDateRange("2026-10-19", "2026-10-19")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !r.Contains(time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)) {
		t.Error("Expected same-day range to cover the whole day")
	}
}

func TestParseDateRange_Malformed(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	_, err := v.ParseDateRange("yesterday", "")

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "startDate" {
		t.Errorf("Expected startDate ValidationError, got %v", err)
	}
}

func TestParseDateRange_Open(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	r, err := v.ParseDateRange("", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !r.Start.IsZero() || !r.End.IsZero() {
		t.Errorf("Expected open range, got %+v", r)
	}
}

func TestParseReportRange_RequiresBounds(t *testing.T) {
	v := NewValidator(time.UTC, testFutureToleranceMinutes)

	if _, err := v.ParseReportRange("", "2026-10-19"); err == nil {
		t.Error("Expected error for missing startDate")
	}
}

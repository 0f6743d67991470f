package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/septivank/water-ops-service/internal/anomaly"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/events"
	"github.com/septivank/water-ops-service/internal/export"
	"github.com/septivank/water-ops-service/internal/mq"
	"github.com/septivank/water-ops-service/internal/repository"
	"github.com/septivank/water-ops-service/internal/validator"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(ctx context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		out = append(out, e.RoutingKey)
	}
	return out
}

func newTestDashboard(t *testing.T) (*Dashboard, *repository.MemoryStore, *capturePublisher) {
	t.Helper()
	now := func() time.Time { return testNow }
	store := repository.NewMemoryStoreWithClock(now)
	pub := &capturePublisher{}
	d := NewDashboard(Options{
		Store:     store,
		Validator: validator.NewValidator(time.UTC, 10),
		Detector:  anomaly.NewDetector(3.0, 3, 10),
		Location:  time.UTC,
		Publisher: pub,
		Now:       now,
	})
	return d, store, pub
}

func usage(location string, gallons float64, ts string) validator.UsageInput {
	return validator.UsageInput{
		Timestamp: ts,
		Location:  location,
		Gallons:   gallons,
		Pressure:  60.0,
		FlowRate:  12.5,
	}
}

func TestRecordUsage_SpikeRaisesAlert(t *testing.T) {
	d, store, pub := newTestDashboard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.RecordUsage(ctx, usage("Zone A", 100, "2024-03-05T08:00:00Z")); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
	if alerts, _ := store.ListAlerts(ctx, db.TimeRange{}); len(alerts) != 0 {
		t.Fatalf("Expected no alerts before the spike, got %d", len(alerts))
	}

	if _, err := d.RecordUsage(ctx, usage("Zone A", 1000, "2024-03-05T09:00:00Z")); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	alerts, err := store.ListAlerts(ctx, db.TimeRange{})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 spike alert, got %d", len(alerts))
	}
	if alerts[0].Type != AlertTypeUsageSpike || alerts[0].Severity != db.AlertWarning || alerts[0].Location != "Zone A" {
		t.Errorf("Unexpected alert %+v", alerts[0])
	}

	keys := pub.keys()
	if keys[len(keys)-1] != "water.alert.created" {
		t.Errorf("Expected last event to be water.alert.created, got %v", keys)
	}
}

func TestRecordUsage_SpikeIsPerLocation(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d.RecordUsage(ctx, usage("Zone A", 100, "2024-03-05T08:00:00Z"))
	}
	if _, err := d.RecordUsage(ctx, usage("Zone B", 1000, "2024-03-05T09:00:00Z")); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if alerts, _ := store.ListAlerts(ctx, db.TimeRange{}); len(alerts) != 0 {
		t.Errorf("Expected no alert for a location without history, got %d", len(alerts))
	}
}

func TestRecordUsage_NegativeGallonsRejected(t *testing.T) {
	d, store, pub := newTestDashboard(t)
	ctx := context.Background()

	_, err := d.RecordUsage(ctx, usage("Zone A", -5, ""))
	var verr *validator.ValidationError
	if !errors.As(err, &verr) || verr.Field != "gallons" {
		t.Fatalf("Expected gallons ValidationError, got %v", err)
	}
	if readings, _ := store.ListUsage(ctx, db.TimeRange{}); len(readings) != 0 {
		t.Errorf("Expected nothing stored, got %d readings", len(readings))
	}
	if len(pub.keys()) != 0 {
		t.Errorf("Expected no events, got %v", pub.keys())
	}
}

func TestUpdateLeak_ResolvedIsTerminal(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	ctx := context.Background()

	leak, err := d.ReportLeak(ctx, validator.LeakInput{Location: "Main St", Severity: "critical"})
	if err != nil {
		t.Fatalf("ReportLeak failed: %v", err)
	}
	resolved := db.LeakStatusResolved
	if _, err := d.UpdateLeak(ctx, leak.ID, db.LeakPatch{Status: &resolved}); err != nil {
		t.Fatalf("UpdateLeak failed: %v", err)
	}

	active := db.LeakStatusActive
	_, err = d.UpdateLeak(ctx, leak.ID, db.LeakPatch{Status: &active})
	var terr *db.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransitionError, got %v", err)
	}

	got, _ := d.GetLeak(ctx, leak.ID)
	if got.Status != db.LeakStatusResolved {
		t.Errorf("Expected leak to stay resolved, got %s", got.Status)
	}
}

func TestUpdateLeak_UnknownStatusRejected(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	ctx := context.Background()

	leak, _ := d.ReportLeak(ctx, validator.LeakInput{Location: "Main St", Severity: "low"})
	bogus := db.LeakStatus("fixed")
	_, err := d.UpdateLeak(ctx, leak.ID, db.LeakPatch{Status: &bogus})
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestUpdateMaintenance_CompletionStampsDate(t *testing.T) {
	d, _, pub := newTestDashboard(t)
	ctx := context.Background()

	task, err := d.ScheduleMaintenance(ctx, validator.MaintenanceInput{
		TaskType:           "valve_replacement",
		Location:           "Pump Station 2",
		ScheduledDate:      "2024-03-12",
		AssignedTechnician: "R. Diaz",
	})
	if err != nil {
		t.Fatalf("ScheduleMaintenance failed: %v", err)
	}
	if task.CompletedDate != nil {
		t.Fatal("Expected no completedDate on a pending task")
	}

	completed := db.MaintenanceCompleted
	updated, err := d.UpdateMaintenance(ctx, task.ID, db.MaintenancePatch{Status: &completed})
	if err != nil {
		t.Fatalf("UpdateMaintenance failed: %v", err)
	}
	if updated.CompletedDate == nil || !updated.CompletedDate.Equal(testNow) {
		t.Errorf("Expected completedDate %v, got %v", testNow, updated.CompletedDate)
	}

	pending := db.MaintenancePending
	if _, err := d.UpdateMaintenance(ctx, task.ID, db.MaintenancePatch{Status: &pending}); err == nil {
		t.Error("Expected moving a completed task back to pending to fail")
	}

	want := []string{"water.maintenance.scheduled", "water.maintenance.updated"}
	if got := pub.keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, got)
	}
}

func TestMarkAlertRead_IdempotentActivity(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	ctx := context.Background()

	alert, err := d.CreateAlert(ctx, validator.AlertInput{Type: "pressure_drop", Severity: "critical", Location: "Zone C", Message: "Pressure below 20 psi"})
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := d.MarkAlertRead(ctx, alert.ID)
		if err != nil {
			t.Fatalf("MarkAlertRead #%d failed: %v", i+1, err)
		}
		if !got.IsRead {
			t.Fatalf("Expected alert to be read after call #%d", i+1)
		}
	}

	activities, _ := store.ListActivities(ctx, db.TimeRange{}, 0)
	reads := 0
	for _, a := range activities {
		if a.EventType == ActivityAlertRead {
			reads++
		}
	}
	if reads != 1 {
		t.Errorf("Expected exactly 1 alert_read activity, got %d", reads)
	}
}

func TestMarkAlertRead_ConcurrentCallsRecordOnce(t *testing.T) {
	d, store, pub := newTestDashboard(t)
	ctx := context.Background()

	alert, err := d.CreateAlert(ctx, validator.AlertInput{Type: "pressure_drop", Severity: "warning", Location: "Zone D", Message: "Pressure dipping"})
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.MarkAlertRead(ctx, alert.ID); err != nil {
				t.Errorf("MarkAlertRead failed: %v", err)
			}
		}()
	}
	wg.Wait()

	activities, _ := store.ListActivities(ctx, db.TimeRange{}, 0)
	reads := 0
	for _, a := range activities {
		if a.EventType == ActivityAlertRead {
			reads++
		}
	}
	if reads != 1 {
		t.Errorf("Expected exactly 1 alert_read activity, got %d", reads)
	}

	readEvents := 0
	for _, key := range pub.keys() {
		if key == "water.alert.read" {
			readEvents++
		}
	}
	if readEvents != 1 {
		t.Errorf("Expected exactly 1 alert read event, got %d", readEvents)
	}
}

func TestMarkAlertRead_NotFound(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	if _, err := d.MarkAlertRead(context.Background(), 42); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecord_ActorInActivityDetails(t *testing.T) {
	d, store, pub := newTestDashboard(t)
	ctx := WithActor(context.Background(), config.Identity{UserID: "u-7", Name: "Jane Operator", Role: "operator"})

	if _, err := d.ReportLeak(ctx, validator.LeakInput{Location: "Elm Ave", Severity: "medium"}); err != nil {
		t.Fatalf("ReportLeak failed: %v", err)
	}

	activities, _ := store.ListActivities(ctx, db.TimeRange{}, 0)
	if len(activities) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(activities))
	}
	a := activities[0]
	if a.EventType != ActivityLeakReported || a.Location != "Elm Ave" {
		t.Errorf("Unexpected activity %+v", a)
	}
	if a.Details == nil || !strings.HasSuffix(*a.Details, "by Jane Operator") {
		t.Errorf("Expected details to name the actor, got %v", a.Details)
	}
	if pub.events[0].Actor != "u-7" {
		t.Errorf("Expected event actor u-7, got %q", pub.events[0].Actor)
	}
}

func TestListUsage_InvertedRange(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	_, err := d.ListUsage(context.Background(), "2024-03-10", "2024-03-01")
	if !errors.Is(err, validator.ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestGenerateReport_WeeklyUsageCSV(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	ctx := context.Background()

	d.RecordUsage(ctx, usage("Zone A", 3500, "2024-03-07T23:30:00Z"))
	d.RecordUsage(ctx, usage("Zone A", 1200, "2024-03-08T00:00:00Z"))

	out, err := d.GenerateReport(ctx, ReportRequest{ReportType: "weekly-usage", Format: "csv", StartDate: "2024-03-01", EndDate: "2024-03-07"})
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if out.ContentType != export.ContentTypeCSV {
		t.Errorf("Expected csv content type, got %s", out.ContentType)
	}
	if out.Filename != "weekly-usage_2024-03-01_2024-03-07.csv" {
		t.Errorf("Unexpected filename %s", out.Filename)
	}

	lines := strings.Split(strings.TrimSpace(string(out.Bytes)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header plus the reading inside the end day, got %d lines: %q", len(lines), out.Bytes)
	}
	if lines[0] != "ID,Timestamp,Location,Gallons,Pressure,Flow Rate,Temperature" {
		t.Errorf("Unexpected header %q", lines[0])
	}

	activities, _ := store.ListActivities(ctx, db.TimeRange{}, 1)
	if len(activities) != 1 || activities[0].EventType != ActivityReportGenerated {
		t.Errorf("Expected report_generated activity, got %+v", activities)
	}
}

func TestGenerateReport_UnknownTypeFallsBackToUsage(t *testing.T) {
	d, _, _ := newTestDashboard(t)

	out, err := d.GenerateReport(context.Background(), ReportRequest{ReportType: "quarterly-audit", Format: "xlsx", StartDate: "2024-03-01", EndDate: "2024-03-07"})
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if out.Filename != "quarterly-audit_2024-03-01_2024-03-07.csv" {
		t.Errorf("Unexpected filename %s", out.Filename)
	}
	if !strings.HasPrefix(string(out.Bytes), "ID,Timestamp,Location,Gallons") {
		t.Errorf("Expected usage csv, got %q", out.Bytes)
	}
}

func TestGenerateReport_JSONRecords(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	ctx := context.Background()

	d.ReportLeak(ctx, validator.LeakInput{Location: "Oak Rd", Severity: "low", DetectedAt: "2024-03-02T10:00:00Z"})

	out, err := d.GenerateReport(ctx, ReportRequest{ReportType: "leak-analysis", Format: "json", StartDate: "2024-03-01", EndDate: "2024-03-07"})
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	var leaks []db.Leak
	if err := json.Unmarshal(out.Bytes, &leaks); err != nil {
		t.Fatalf("Expected JSON array of leaks: %v", err)
	}
	if len(leaks) != 1 || leaks[0].Location != "Oak Rd" {
		t.Errorf("Unexpected records %+v", leaks)
	}
}

func TestGenerateReport_RequiresRange(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	_, err := d.GenerateReport(context.Background(), ReportRequest{ReportType: "weekly-usage", Format: "csv", StartDate: "2024-03-01"})
	var verr *validator.ValidationError
	if !errors.As(err, &verr) || verr.Field != "endDate" {
		t.Errorf("Expected endDate ValidationError, got %v", err)
	}
}

func TestProcessMessage_StoresBatch(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	ctx := context.Background()

	body := []byte(`{"request_id":"req-1","readings":[
		{"timestamp":"2024-03-10T08:00:00Z","location":"Zone A","gallons":"120.5","pressure":61,"flowRate":10},
		{"timestamp":"2024-03-10T09:00:00Z","location":"Zone A","gallons":130,"pressure":"60.2","flowRate":11}
	]}`)
	if err := d.ProcessMessage(ctx, body); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	readings, _ := store.ListUsage(ctx, db.TimeRange{})
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if readings[1].Gallons != 120.5 {
		t.Errorf("Expected numeric string to parse, got %v", readings[1].Gallons)
	}

	activities, _ := store.ListActivities(ctx, db.TimeRange{}, 1)
	if len(activities) != 1 || !strings.HasSuffix(*activities[0].Details, "by meter ingest") {
		t.Errorf("Expected ingest actor in activity, got %+v", activities)
	}
}

func TestProcessMessage_PermanentFailures(t *testing.T) {
	d, store, _ := newTestDashboard(t)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"request_id":`},
		{"invalid reading", `{"request_id":"req-2","readings":[
			{"location":"Zone A","gallons":10,"pressure":60,"flowRate":1},
			{"location":"Zone A","gallons":-1,"pressure":60,"flowRate":1}
		]}`},
		{"future reading", `{"request_id":"req-3","received_at":"2024-03-10T12:00:00Z","readings":[
			{"timestamp":"2024-03-10T13:00:00Z","location":"Zone A","gallons":10,"pressure":60,"flowRate":1}
		]}`},
	}

	for _, tt := range tests {
		err := d.ProcessMessage(ctx, []byte(tt.body))
		if mq.Decide(err, false) != mq.DeadLetter {
			t.Errorf("%s: expected dead-letter disposition, got err %v", tt.name, err)
		}
	}

	if readings, _ := store.ListUsage(ctx, db.TimeRange{}); len(readings) != 0 {
		t.Errorf("Expected nothing stored from rejected batches, got %d", len(readings))
	}
}

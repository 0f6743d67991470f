package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/septivank/water-ops-service/internal/anomaly"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/observability"
	"github.com/septivank/water-ops-service/internal/repository"
	"github.com/septivank/water-ops-service/internal/service"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

var testIdentity = config.Identity{UserID: "operator-1", Name: "Utility Operator", Role: "operator"}

func newTestServer(t *testing.T) (http.Handler, *repository.MemoryStore) {
	t.Helper()
	now := func() time.Time { return testNow }
	store := repository.NewMemoryStoreWithClock(now)
	svc := service.NewDashboard(service.Options{
		Store:     store,
		Validator: validator.NewValidator(time.UTC, 10),
		Detector:  anomaly.NewDetector(3.0, 3, 10),
		Location:  time.UTC,
		Now:       now,
	})
	logger := zap.NewNop()
	router := NewRouter(NewHandler(svc, testIdentity, logger), RouterOptions{
		Metrics:        observability.NewMetrics(),
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         logger,
	})
	return router, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("Invalid error body %q: %v", rec.Body.String(), err)
	}
	return apiErr
}

func TestKPIs_Empty(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/dashboard/kpis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["totalUsageToday"] != 0.0 || body["usageChangePercent"] != 0.0 {
		t.Errorf("Expected zero usage, got %v", body)
	}
	if v, ok := body["averageSystemPressure"]; !ok || v != nil {
		t.Errorf("Expected averageSystemPressure null, got %v", v)
	}
}

func TestCreateUsage_Created(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/water-usage",
		`{"timestamp":"2024-03-10T08:00:00Z","location":"Zone A","gallons":3500,"pressure":62.5,"flowRate":"14.2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var reading db.UsageReading
	json.Unmarshal(rec.Body.Bytes(), &reading)
	if reading.ID != 1 || reading.FlowRate != 14.2 {
		t.Errorf("Unexpected reading %+v", reading)
	}

	rec = do(t, h, http.MethodGet, "/api/water-usage/1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for created reading, got %d", rec.Code)
	}
}

func TestCreateUsage_ValidationError(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/water-usage", `{"location":"Zone A","gallons":-3,"pressure":60,"flowRate":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != ErrorCodeValidationFailed {
		t.Errorf("Expected validation_failed, got %s", apiErr.Code)
	}
}

func TestCreateUsage_MalformedJSON(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/water-usage", `{"location":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != ErrorCodeInvalidFormat {
		t.Errorf("Expected invalid_format, got %s", apiErr.Code)
	}
}

func TestListUsage_InvertedRange(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/water-usage?startDate=2024-03-10&endDate=2024-03-01", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != ErrorCodeInvalidRange {
		t.Errorf("Expected invalid_range, got %s", apiErr.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/water-usage?startDate=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestGetLeak_NotFound(t *testing.T) {
	h, _ := newTestServer(t)

	for _, path := range []string{"/api/leaks/99", "/api/maintenance/99", "/api/alerts/99", "/api/water-usage/99", "/api/leaks/abc"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestUpdateLeak_ReopenRejected(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/leaks", `{"location":"Main St","severity":"critical"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPatch, "/api/leaks/1", `{"status":"resolved","notes":"clamp fitted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPatch, "/api/leaks/1", `{"status":"active"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != ErrorCodeInvalidTransition {
		t.Errorf("Expected invalid_transition, got %s", apiErr.Code)
	}
}

func TestMarkAlertRead_MissingAlert(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPatch, "/api/alerts/99/read", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if apiErr := decodeError(t, rec); apiErr.Code != ErrorCodeNotFound {
		t.Errorf("Expected not_found, got %s", apiErr.Code)
	}
}

func TestMarkAlertRead_Twice(t *testing.T) {
	h, store := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/alerts", `{"type":"pressure_drop","severity":"critical","location":"Zone C","message":"Pressure below 20 psi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPatch, "/api/alerts/1/read", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Call #%d: expected 200, got %d", i+1, rec.Code)
		}
		var alert db.Alert
		json.Unmarshal(rec.Body.Bytes(), &alert)
		if !alert.IsRead {
			t.Errorf("Call #%d: expected isRead true", i+1)
		}
	}

	alerts, _ := store.ListAlerts(context.Background(), db.TimeRange{})
	if len(alerts) != 1 || !alerts[0].IsRead {
		t.Errorf("Expected one read alert, got %+v", alerts)
	}
}

func TestGenerateReport_Attachment(t *testing.T) {
	h, _ := newTestServer(t)

	do(t, h, http.MethodPost, "/api/maintenance", `{"taskType":"valve_replacement","location":"Pump Station 2","scheduledDate":"2024-03-05","assignedTechnician":"R. Diaz","description":"Replace gate valve, north line"}`)

	rec := do(t, h, http.MethodPost, "/api/reports/generate", `{"reportType":"maintenance-log","format":"csv","startDate":"2024-03-01","endDate":"2024-03-07"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	want := `attachment; filename="maintenance-log_2024-03-01_2024-03-07.csv"`
	if cd := rec.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Expected Content-Disposition %q, got %q", want, cd)
	}
	if !strings.Contains(rec.Body.String(), `"Replace gate valve, north line"`) {
		t.Errorf("Expected quoted description in csv, got %q", rec.Body.String())
	}
}

func TestGenerateReport_PDFIsText(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/reports/generate", `{"reportType":"leak-analysis","format":"pdf","startDate":"2024-03-01","endDate":"2024-03-07"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "No records in range.") {
		t.Errorf("Expected empty-range text report, got %q", rec.Body.String())
	}
}

func TestMe_ReturnsIdentity(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/me", "")
	var got config.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got != testIdentity {
		t.Errorf("Expected %+v, got %+v", testIdentity, got)
	}
}

func TestActivities_RecordActor(t *testing.T) {
	h, _ := newTestServer(t)

	do(t, h, http.MethodPost, "/api/leaks", `{"location":"Elm Ave","severity":"medium"}`)

	rec := do(t, h, http.MethodGet, "/api/activities?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var activities []db.Activity
	json.Unmarshal(rec.Body.Bytes(), &activities)
	if len(activities) != 1 || activities[0].Details == nil || !strings.Contains(*activities[0].Details, testIdentity.Name) {
		t.Errorf("Expected activity naming the operator, got %+v", activities)
	}

	rec = do(t, h, http.MethodGet, "/api/activities?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestRouter_RequestIDAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodDelete, "/api/leaks", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

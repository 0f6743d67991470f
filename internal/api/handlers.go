package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/septivank/water-ops-service/internal/config"
	"github.com/septivank/water-ops-service/internal/db"
	"github.com/septivank/water-ops-service/internal/logging"
	"github.com/septivank/water-ops-service/internal/service"
	"github.com/septivank/water-ops-service/internal/validator"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler serves the dashboard REST API
type Handler struct {
	svc      *service.Dashboard
	identity config.Identity
	logger   *zap.Logger
}

// NewHandler creates the REST handler
func NewHandler(svc *service.Dashboard, identity config.Identity, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, identity: identity, logger: logger}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logging.WithRequestID(h.logger, RequestID(r.Context())).Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}
	RespondWithError(w, h.logger, apiErr)
}

func (h *Handler) ok(w http.ResponseWriter, status int, payload any) {
	RespondWithJSON(w, h.logger, status, payload)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return NewAPIError(ErrorCodeBadRequest, fmt.Sprintf("error reading request body: %v", err), nil, http.StatusBadRequest)
	}
	if len(body) == 0 {
		return NewAPIError(ErrorCodeBadRequest, "request body is empty", nil, http.StatusBadRequest)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return NewAPIError(ErrorCodeInvalidFormat, fmt.Sprintf("error unmarshalling JSON: %v", err), nil, http.StatusBadRequest)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, &validator.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func rangeParams(r *http.Request) (string, string) {
	q := r.URL.Query()
	return q.Get("startDate"), q.Get("endDate")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.ok(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the injected dashboard identity
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, h.identity)
}

func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.svc.KPIs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, kpis)
}

func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	start, end := rangeParams(r)
	readings, err := h.svc.ListUsage(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, readings)
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reading, err := h.svc.GetUsage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, reading)
}

func (h *Handler) CreateUsage(w http.ResponseWriter, r *http.Request) {
	var in validator.UsageInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	reading, err := h.svc.RecordUsage(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, reading)
}

func (h *Handler) ListLeaks(w http.ResponseWriter, r *http.Request) {
	start, end := rangeParams(r)
	leaks, err := h.svc.ListLeaks(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, leaks)
}

func (h *Handler) GetLeak(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	leak, err := h.svc.GetLeak(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, leak)
}

func (h *Handler) CreateLeak(w http.ResponseWriter, r *http.Request) {
	var in validator.LeakInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	leak, err := h.svc.ReportLeak(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, leak)
}

func (h *Handler) UpdateLeak(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch db.LeakPatch
	if err := decodeBody(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	leak, err := h.svc.UpdateLeak(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, leak)
}

func (h *Handler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	start, end := rangeParams(r)
	tasks, err := h.svc.ListMaintenance(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, tasks)
}

func (h *Handler) GetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.svc.GetMaintenance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, task)
}

func (h *Handler) CreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var in validator.MaintenanceInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.svc.ScheduleMaintenance(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, task)
}

// UpdateMaintenance applies a partial update. scheduledDate must be RFC 3339.
func (h *Handler) UpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch db.MaintenancePatch
	if err := decodeBody(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.svc.UpdateMaintenance(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, task)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	start, end := rangeParams(r)
	alerts, err := h.svc.ListAlerts(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, alerts)
}

func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alert, err := h.svc.GetAlert(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, alert)
}

func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var in validator.AlertInput
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	alert, err := h.svc.CreateAlert(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, alert)
}

// MarkAlertRead takes no body and is safe to repeat
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alert, err := h.svc.MarkAlertRead(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, alert)
}

func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(w, r, &validator.ValidationError{Field: "limit", Reason: "must be a non-negative integer"})
			return
		}
		limit = n
	}
	start, end := rangeParams(r)
	activities, err := h.svc.ListActivities(r.Context(), start, end, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, activities)
}

// GenerateReport streams the packaged report as an attachment
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req service.ReportRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.svc.GenerateReport(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Bytes)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Bytes); err != nil {
		h.logger.Warn("failed to write report", zap.Error(err), zap.String("filename", out.Filename))
	}
}

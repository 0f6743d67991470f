package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/septivank/water-ops-service/internal/observability"
	"go.uber.org/zap"
)

// RouterOptions holds what the router needs besides the REST handler
type RouterOptions struct {
	Stream         http.Handler
	Metrics        *observability.Metrics
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the HTTP surface with its middleware stack
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := mux.NewRouter()

	route := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, opts.Metrics.WrapHandler(path, fn)).Methods(methods...)
	}

	route("/health", h.Health, http.MethodGet)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	route("/api/me", h.Me, http.MethodGet)
	route("/api/dashboard/kpis", h.KPIs, http.MethodGet)

	route("/api/water-usage", h.ListUsage, http.MethodGet)
	route("/api/water-usage", h.CreateUsage, http.MethodPost)
	route("/api/water-usage/{id:[0-9]+}", h.GetUsage, http.MethodGet)

	route("/api/leaks", h.ListLeaks, http.MethodGet)
	route("/api/leaks", h.CreateLeak, http.MethodPost)
	route("/api/leaks/{id:[0-9]+}", h.GetLeak, http.MethodGet)
	route("/api/leaks/{id:[0-9]+}", h.UpdateLeak, http.MethodPatch)

	route("/api/maintenance", h.ListMaintenance, http.MethodGet)
	route("/api/maintenance", h.CreateMaintenance, http.MethodPost)
	route("/api/maintenance/{id:[0-9]+}", h.GetMaintenance, http.MethodGet)
	route("/api/maintenance/{id:[0-9]+}", h.UpdateMaintenance, http.MethodPatch)

	route("/api/alerts", h.ListAlerts, http.MethodGet)
	route("/api/alerts", h.CreateAlert, http.MethodPost)
	if opts.Stream != nil {
		r.Handle("/api/alerts/stream", opts.Stream).Methods(http.MethodGet)
	}
	route("/api/alerts/{id:[0-9]+}", h.GetAlert, http.MethodGet)
	route("/api/alerts/{id:[0-9]+}/read", h.MarkAlertRead, http.MethodPatch)

	route("/api/activities", h.ListActivities, http.MethodGet)
	route("/api/reports/generate", h.GenerateReport, http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		RespondWithError(w, opts.Logger, NewAPIError(ErrorCodeNotFound, "route not found", nil, http.StatusNotFound))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		RespondWithError(w, opts.Logger, NewAPIError(ErrorCodeMethodNotAllowed, "method not allowed", nil, http.StatusMethodNotAllowed))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: true,
	})

	var handler http.Handler = r
	handler = withIdentity(h.identity)(handler)
	handler = c.Handler(handler)
	handler = accessLog(opts.Logger)(handler)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(opts.Logger)),
		handlers.PrintRecoveryStack(false),
	)(handler)
	handler = handlers.ProxyHeaders(handler)
	return handler
}

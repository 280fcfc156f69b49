package handler

import (
	"fmt"
	"net/http"

	"github.com/tasklist/tasklist/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "tasklist_tasks_created_total %d\n", snap.TasksCreated)
	writeMetric(w, "tasklist_tasks_updated_total %d\n", snap.TasksUpdated)
	writeMetric(w, "tasklist_tasks_deleted_total %d\n", snap.TasksDeleted)

	writeMetric(w, "tasklist_users_registered_total %d\n", snap.UsersRegistered)

	writeMetric(w, "tasklist_tokens_issued_total{grant=\"password\"} %d\n", snap.TokensIssuedPassword)
	writeMetric(w, "tasklist_tokens_issued_total{grant=\"refresh\"} %d\n", snap.TokensIssuedRefresh)
	writeMetric(w, "tasklist_auth_failures_total %d\n", snap.AuthFailures)

	writeMetric(w, "tasklist_access_denied_total{reason=\"not_owner\"} %d\n", snap.DeniedNotOwner)
	writeMetric(w, "tasklist_access_denied_total{reason=\"not_admin\"} %d\n", snap.DeniedNotAdmin)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

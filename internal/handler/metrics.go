package handler

import (
	"fmt"
	"net/http"

	"github.com/researchhub/identity/internal/metrics"
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

	writeMetric(w, "identity_registrations_total %d\n", snap.Registrations)
	writeMetric(w, "identity_logins_total{status=\"success\"} %d\n", snap.LoginSuccesses)
	writeMetric(w, "identity_logins_total{status=\"failure\"} %d\n", snap.LoginFailures)

	writeMetric(w, "identity_token_rotations_total %d\n", snap.TokenRotations)
	writeMetric(w, "identity_token_replays_blocked_total %d\n", snap.TokenReplaysBlocked)

	writeMetric(w, "identity_password_resets_total{stage=\"requested\"} %d\n", snap.PasswordResetsRequested)
	writeMetric(w, "identity_password_resets_total{stage=\"completed\"} %d\n", snap.PasswordResetsCompleted)

	writeMetric(w, "identity_integrations_total{event=\"linked\"} %d\n", snap.IntegrationsLinked)
	writeMetric(w, "identity_integrations_total{event=\"removed\"} %d\n", snap.IntegrationsRemoved)
	writeMetric(w, "identity_integrations_total{event=\"rejected\"} %d\n", snap.IntegrationsRejected)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthResponse represents the response structure for health check endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`           // "ok" or "error"
	Timestamp time.Time         `json:"timestamp"`        // Current server time
	Checks    map[string]string `json:"checks,omitempty"` // Individual component health
	Uptime    string            `json:"uptime,omitempty"`
}

// VersionResponse describes the running build and database schema.
type VersionResponse struct {
	Version       string            `json:"version"`
	SchemaVersion uint              `json:"schema_version"`
	SchemaDirty   bool              `json:"schema_dirty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

var startTime = time.Now()

// HealthCheck handles the /health endpoint.
// This endpoint does NOT check dependencies, use /readiness for that.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    formatUptime(time.Since(startTime)),
	})
}

// ReadinessCheck handles the /readiness endpoint.
//
// Returns:
// - 200 OK if all dependencies are healthy
// - 503 Service Unavailable if any dependency is unhealthy
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": h.checkDatabase(r.Context())}

	status, httpStatus := "ok", http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status, httpStatus = "error", http.StatusServiceUnavailable
		}
	}

	jsonResponse(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// checkDatabase pings the pool and runs SELECT 1 within readinessTimeout.
func (h *Handler) checkDatabase(ctx context.Context) string {
	if h.deps.Health == nil {
		return "error"
	}
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	if err := h.deps.Health.CheckHealth(ctx); err != nil {
		LoggerFromContext(ctx, h.logger).Warn("Readiness check failed", "check", "database", "error", err)
		return "error"
	}
	return "ok"
}

// Version handles the /version endpoint / Retourne la version de l'application
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{Version: h.deps.Version}
	logger := LoggerFromContext(r.Context(), h.logger)

	if h.deps.Schema != nil {
		version, dirty, err := h.deps.Schema.Version(r.Context())
		if err != nil {
			logger.Error("Failed to read schema version", "error", err)
			writeProblem(w, r, http.StatusInternalServerError, "schema version unavailable")
			return
		}
		resp.SchemaVersion, resp.SchemaDirty = version, dirty
	}

	if h.deps.Metadata != nil {
		entries, err := h.deps.Metadata.List(r.Context())
		if err != nil {
			logger.Error("Failed to list metadata", "error", err)
			writeProblem(w, r, http.StatusInternalServerError, "metadata unavailable")
			return
		}
		resp.Metadata = make(map[string]string, len(entries))
		for _, e := range entries {
			resp.Metadata[e.Name] = e.Value
		}
	}

	jsonResponse(w, http.StatusOK, resp)
}

// formatUptime converts a duration into a human-readable uptime string.
// Examples: "2h 15m 30s", "1d 5h 23m", "45s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return joinUnits(unit{days, "d"}, unit{hours, "h"}, unit{minutes, "m"})
	case hours > 0:
		return joinUnits(unit{hours, "h"}, unit{minutes, "m"}, unit{seconds, "s"})
	case minutes > 0:
		return joinUnits(unit{minutes, "m"}, unit{seconds, "s"})
	default:
		return strconv.Itoa(seconds) + "s"
	}
}

type unit struct {
	value  int
	suffix string
}

// joinUnits skips zero values.
func joinUnits(units ...unit) string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		if u.value > 0 {
			out = append(out, strconv.Itoa(u.value)+u.suffix)
		}
	}
	return strings.Join(out, " ")
}

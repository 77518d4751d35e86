package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks the liveness of a backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint. Component pingers are
// optional; a nil entry is reported as disabled rather than failing.
type HealthHandler struct {
	components map[string]Pinger
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given named components.
func NewHealthHandler(components map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		components: components,
		logger:     logger,
	}
}

// HealthCheck reports overall liveness plus per-component status. The
// endpoint stays 200 as long as the process is serving; degraded components
// show up in the body.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	status := "ok"
	for name, p := range h.components {
		if p == nil {
			components[name] = "disabled"
			continue
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = "unavailable"
			status = "degraded"
			h.logger.WarnContext(ctx, "health: component check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

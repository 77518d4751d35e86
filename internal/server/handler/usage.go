package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// UsageReader summarizes external API usage over a period.
type UsageReader interface {
	StatsForPeriod(ctx context.Context, service domain.APIService, from, to time.Time) (domain.UsageStats, error)
}

// UsageHandler serves cost and usage accounting endpoints.
type UsageHandler struct {
	usage  UsageReader
	logger *slog.Logger
}

// NewUsageHandler creates a UsageHandler with the given reader and logger.
func NewUsageHandler(usage UsageReader, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

type usageStatsResponse struct {
	Service           string    `json:"service"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	TotalCostUSD      float64   `json:"totalCostUsd"`
	TotalRequests     int64     `json:"totalRequests"`
	AvgResponseTimeMs float64   `json:"avgResponseTimeMs"`
}

var knownServices = map[domain.APIService]struct{}{
	domain.ServiceZerion:    {},
	domain.ServiceCoinGecko: {},
	domain.ServiceDefiLlama: {},
	domain.ServiceAnthropic: {},
	domain.ServiceAvaxRPC:   {},
}

// GetStats returns aggregate usage for one service over [from, to). The
// period defaults to the last 30 days; bounds come as RFC 3339 query
// parameters.
// GET /api/usage/{service}?from=...&to=...
func (h *UsageHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	service := domain.APIService(pathParam(r, "service"))
	if _, ok := knownServices[service]; !ok {
		writeError(w, http.StatusBadRequest, "unknown service")
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}

	stats, err := h.usage.StatsForPeriod(r.Context(), service, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: usage stats failed",
			slog.String("service", string(service)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load usage stats")
		return
	}

	writeJSON(w, http.StatusOK, usageStatsResponse{
		Service:           string(service),
		From:              from,
		To:                to,
		TotalCostUSD:      stats.TotalCostUSD,
		TotalRequests:     stats.TotalRequests,
		AvgResponseTimeMs: stats.AvgResponseTimeMs,
	})
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avalens/avalens/internal/domain"
)

// PortfolioService defines what the portfolio handler requires from the
// service layer. Declared locally so the handler package does not depend on
// the concrete service implementation.
type PortfolioService interface {
	Fetch(ctx context.Context, addresses []string) (*domain.Portfolio, error)
	Refresh(ctx context.Context, addresses []string) (*domain.Portfolio, error)
	History(ctx context.Context, wallet string) ([]domain.PortfolioSnapshot, domain.PortfolioChanges, error)
}

// PortfolioHandler serves portfolio-related HTTP endpoints.
type PortfolioHandler struct {
	portfolios PortfolioService
	logger     *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(portfolios PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolios: portfolios,
		logger:     logger,
	}
}

type historyResponse struct {
	WalletAddress string             `json:"walletAddress"`
	Snapshots     []snapshotResponse `json:"snapshots"`
	Changes       changesResponse    `json:"changes"`
}

// GetPortfolio returns the aggregated portfolio for one or more wallets. The
// path parameter accepts a comma-separated address list; the first address
// names the portfolio.
// GET /api/portfolio/{address}
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	addresses, ok := addressesParam(w, r)
	if !ok {
		return
	}

	p, err := h.portfolios.Fetch(r.Context(), addresses)
	if err != nil {
		h.writePortfolioError(w, r, "fetch portfolio", err)
		return
	}

	writeJSON(w, http.StatusOK, renderPortfolio(p))
}

// RefreshPortfolio drops cached provider data for the wallets and re-fetches
// the portfolio from upstream.
// POST /api/portfolio/{address}/refresh
func (h *PortfolioHandler) RefreshPortfolio(w http.ResponseWriter, r *http.Request) {
	addresses, ok := addressesParam(w, r)
	if !ok {
		return
	}

	p, err := h.portfolios.Refresh(r.Context(), addresses)
	if err != nil {
		h.writePortfolioError(w, r, "refresh portfolio", err)
		return
	}

	writeJSON(w, http.StatusOK, renderPortfolio(p))
}

// GetHistory returns the wallet's snapshot history over the last 30 days plus
// relative value changes for the standard periods.
// GET /api/portfolio/{address}/history
func (h *PortfolioHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "address")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet address")
		return
	}

	snapshots, changes, err := h.portfolios.History(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio history failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load portfolio history")
		return
	}

	out := historyResponse{
		WalletAddress: strings.ToLower(wallet),
		Snapshots:     make([]snapshotResponse, 0, len(snapshots)),
		Changes: changesResponse{
			Change24h: changes.Change24h,
			Change7d:  changes.Change7d,
			Change30d: changes.Change30d,
		},
	}
	for _, s := range snapshots {
		out.Snapshots = append(out.Snapshots, renderSnapshot(s))
	}

	writeJSON(w, http.StatusOK, out)
}

// addressesParam splits the {address} path parameter into its comma-separated
// parts. Responds with 400 and returns ok=false when the parameter is empty.
func addressesParam(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	raw := pathParam(r, "address")
	var addresses []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		writeError(w, http.StatusBadRequest, "missing wallet address")
		return nil, false
	}
	return addresses, true
}

func (h *PortfolioHandler) writePortfolioError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "invalid wallet address")
	case errors.Is(err, domain.ErrNoPositions):
		writeError(w, http.StatusNotFound, "no positions found for wallet")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avalens/avalens/internal/domain"
)

// WalletInvalidator drops cached provider responses for a wallet so the next
// fetch hits the provider. The position source implements it.
type WalletInvalidator interface {
	InvalidateWallet(address string)
}

// PortfolioService wraps aggregation with snapshot persistence, blob
// archival and history computation.
type PortfolioService struct {
	agg         *Aggregator
	snapshots   domain.SnapshotStore
	blob        domain.BlobWriter
	market      domain.MarketSource
	invalidator WalletInvalidator
	log         *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewPortfolioService builds the service. blob, market and invalidator may be
// nil, which disables archival, market context and forced refresh
// respectively.
func NewPortfolioService(agg *Aggregator, snapshots domain.SnapshotStore, blob domain.BlobWriter, market domain.MarketSource, invalidator WalletInvalidator, log *slog.Logger) *PortfolioService {
	return &PortfolioService{
		agg:         agg,
		snapshots:   snapshots,
		blob:        blob,
		market:      market,
		invalidator: invalidator,
		log:         log.With(slog.String("component", "portfolio")),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Fetch aggregates the portfolio for the given addresses and records a
// snapshot of the result. Snapshot and archival failures are logged; the
// portfolio is still returned.
func (s *PortfolioService) Fetch(ctx context.Context, addresses []string) (*domain.Portfolio, error) {
	p, err := s.agg.Aggregate(ctx, addresses)
	if err != nil {
		return nil, err
	}
	s.snapshot(ctx, p)
	return p, nil
}

// Refresh invalidates cached provider data for the addresses and fetches
// fresh.
func (s *PortfolioService) Refresh(ctx context.Context, addresses []string) (*domain.Portfolio, error) {
	if s.invalidator != nil {
		for _, addr := range addresses {
			s.invalidator.InvalidateWallet(strings.ToLower(strings.TrimSpace(addr)))
		}
	}
	return s.Fetch(ctx, addresses)
}

// ProtocolDetails exposes the aggregator's protocol metadata lookup.
func (s *PortfolioService) ProtocolDetails(ctx context.Context, p *domain.Portfolio) map[string]*domain.ProtocolInfo {
	return s.agg.ProtocolDetails(ctx, p)
}

// topTokenCount is how many market-cap leaders feed the market context.
const topTokenCount = 10

// MarketOverview assembles the optional market-wide signal for insight
// generation: 24h changes of the market-cap leaders plus 7d TVL changes of
// the protocols the portfolio touches. Returns nil when neither is
// available; a failed top-token lookup degrades to protocol data alone.
func (s *PortfolioService) MarketOverview(ctx context.Context, protocols map[string]*domain.ProtocolInfo) *domain.MarketContext {
	mc := &domain.MarketContext{}

	if s.market != nil {
		tokens, err := s.market.TopTokens(ctx, topTokenCount)
		if err != nil {
			s.log.Warn("top tokens unavailable", slog.String("error", err.Error()))
		} else if len(tokens) > 0 {
			mc.TopTokens24hChange = make(map[string]float64, len(tokens))
			for _, tp := range tokens {
				if tp.Symbol == "" {
					continue
				}
				mc.TopTokens24hChange[tp.Symbol] = tp.Change24h
			}
		}
	}

	if len(protocols) > 0 {
		mc.ProtocolTVLChanges = make(map[string]float64, len(protocols))
		for name, info := range protocols {
			mc.ProtocolTVLChanges[name] = info.TVLChange7d
		}
	}

	if len(mc.TopTokens24hChange) == 0 && len(mc.ProtocolTVLChanges) == 0 {
		return nil
	}
	return mc
}

// History returns the wallet's snapshots over the last 30 days plus the
// percentage value changes against the closest snapshots at the 24h, 7d and
// 30d marks. A horizon without an old-enough snapshot reports zero change.
func (s *PortfolioService) History(ctx context.Context, wallet string) ([]domain.PortfolioSnapshot, domain.PortfolioChanges, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	now := s.now().UTC()

	snaps, err := s.snapshots.ListByWallet(ctx, wallet, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, domain.PortfolioChanges{}, fmt.Errorf("service: history of %s: %w", wallet, err)
	}
	if len(snaps) == 0 {
		return nil, domain.PortfolioChanges{}, nil
	}

	latest := snaps[len(snaps)-1]
	changes := domain.PortfolioChanges{
		Change24h: changeSince(snaps, latest, now.Add(-24*time.Hour)),
		Change7d:  changeSince(snaps, latest, now.AddDate(0, 0, -7)),
		Change30d: changeSince(snaps, latest, now.AddDate(0, 0, -30)),
	}
	return snaps, changes, nil
}

// changeSince finds the newest snapshot taken at or before cutoff and
// returns the percentage change of the latest value against it. Snapshots
// are ordered oldest first.
func changeSince(snaps []domain.PortfolioSnapshot, latest domain.PortfolioSnapshot, cutoff time.Time) float64 {
	var base *domain.PortfolioSnapshot
	for i := range snaps {
		if snaps[i].TakenAt.After(cutoff) {
			break
		}
		base = &snaps[i]
	}
	if base == nil || base.TotalValueUSD == 0 {
		return 0
	}
	return (latest.TotalValueUSD - base.TotalValueUSD) / base.TotalValueUSD * 100
}

// snapshot persists the headline numbers and archives the full portfolio to
// blob storage when configured.
func (s *PortfolioService) snapshot(ctx context.Context, p *domain.Portfolio) {
	snap := domain.PortfolioSnapshot{
		ID:            s.newID(),
		WalletAddress: strings.ToLower(p.WalletAddress),
		ChainID:       p.ChainID,
		TotalValueUSD: p.TotalValueUSD,
		TokenCount:    p.TokenCount,
		PositionCount: len(p.Positions),
		TakenAt:       s.now().UTC(),
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.log.Error("snapshot save failed",
			slog.String("wallet", snap.WalletAddress),
			slog.String("error", err.Error()))
	}

	if s.blob == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		s.log.Error("snapshot marshal failed", slog.String("error", err.Error()))
		return
	}
	path := fmt.Sprintf("snapshots/%s/%s.json", snap.WalletAddress, snap.TakenAt.Format(time.RFC3339))
	if err := s.blob.Put(ctx, path, raw, "application/json"); err != nil {
		s.log.Warn("snapshot archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

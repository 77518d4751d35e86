package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/platform/avalanche"
)

// protocolFetchConcurrency bounds parallel metadata lookups per aggregation.
const protocolFetchConcurrency = 4

// Aggregator assembles a portfolio from the position, price and protocol
// sources. Position data is mandatory; pricing and protocol metadata are
// best-effort overlays.
type Aggregator struct {
	positions domain.PositionSource
	prices    domain.PriceSource
	protocols domain.ProtocolSource
	chainID   int64
	log       *slog.Logger
	now       func() time.Time
}

// NewAggregator builds an aggregator for the given chain.
func NewAggregator(positions domain.PositionSource, prices domain.PriceSource, protocols domain.ProtocolSource, chainID int64, log *slog.Logger) *Aggregator {
	return &Aggregator{
		positions: positions,
		prices:    prices,
		protocols: protocols,
		chainID:   chainID,
		log:       log.With(slog.String("component", "aggregator")),
		now:       time.Now,
	}
}

// Aggregate builds the combined portfolio for one or more wallet addresses.
// Addresses are validated, lowercased and deduplicated; the first one names
// the portfolio. A malformed address fails the whole aggregation with
// domain.ErrInvalidAddress. When no position source yields any data the
// aggregation fails with domain.ErrNoPositions rather than returning an
// empty portfolio, so callers can tell "empty wallet" apart from "provider
// down" only via position entries with zero value.
func (a *Aggregator) Aggregate(ctx context.Context, addresses []string) (*domain.Portfolio, error) {
	addrs, err := dedupeAddresses(addresses)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, domain.ErrInvalidAddress
	}

	all := a.fetchPositions(ctx, addrs)
	if len(all) == 0 {
		return nil, domain.ErrNoPositions
	}

	tokens, positions := splitWalletPositions(all)

	a.reprice(ctx, tokens, positions)
	a.repriceNative(ctx, tokens)
	a.enrichProtocols(ctx, positions)

	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].ValueUSD > tokens[j].ValueUSD })
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].TotalValueUSD > positions[j].TotalValueUSD })

	p := &domain.Portfolio{
		WalletAddress: addrs[0],
		ChainID:       a.chainID,
		Tokens:        tokens,
		Positions:     positions,
		LastUpdated:   a.now().UTC(),
	}
	p.RecomputeTotals()

	a.log.Info("portfolio aggregated",
		slog.String("address", p.WalletAddress),
		slog.Int("tokens", p.TokenCount),
		slog.Int("positions", len(p.Positions)),
		slog.Float64("total_usd", p.TotalValueUSD))
	return p, nil
}

// ProtocolDetails resolves metadata for every DeFi protocol the portfolio
// touches, keyed by protocol name. Unresolvable protocols are absent.
func (a *Aggregator) ProtocolDetails(ctx context.Context, p *domain.Portfolio) map[string]*domain.ProtocolInfo {
	names := make([]string, 0, p.ProtocolCount)
	seen := make(map[string]struct{})
	for _, pos := range p.Positions {
		if !pos.IsDeFi() {
			continue
		}
		if _, ok := seen[pos.Protocol]; ok {
			continue
		}
		seen[pos.Protocol] = struct{}{}
		names = append(names, pos.Protocol)
	}

	var mu sync.Mutex
	out := make(map[string]*domain.ProtocolInfo, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(protocolFetchConcurrency)
	for _, name := range names {
		g.Go(func() error {
			if info := a.protocols.Protocol(gctx, name); info != nil {
				mu.Lock()
				out[name] = info
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors

	return out
}

func (a *Aggregator) fetchPositions(ctx context.Context, addrs []string) []domain.Position {
	var (
		mu  sync.Mutex
		all []domain.Position
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		g.Go(func() error {
			positions := a.positions.Positions(gctx, addr)
			mu.Lock()
			all = append(all, positions...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // the source is non-throwing
	return all
}

// splitWalletPositions separates plain wallet holdings from DeFi positions,
// merging duplicate wallet tokens across addresses.
func splitWalletPositions(all []domain.Position) ([]domain.TokenBalance, []domain.Position) {
	merged := make(map[string]*domain.TokenBalance)
	var order []string
	var positions []domain.Position

	for _, pos := range all {
		if pos.IsDeFi() {
			positions = append(positions, pos)
			continue
		}
		for _, tb := range pos.Tokens {
			key := tb.Token.Key()
			existing, ok := merged[key]
			if !ok {
				cp := tb
				merged[key] = &cp
				order = append(order, key)
				continue
			}
			existing.Balance += tb.Balance
			existing.ValueUSD += tb.ValueUSD
			existing.RawBalance = addRaw(existing.RawBalance, tb.RawBalance)
		}
	}

	tokens := make([]domain.TokenBalance, 0, len(order))
	for _, key := range order {
		tokens = append(tokens, *merged[key])
	}
	return tokens, positions
}

// reprice overlays fresh quotes onto every token that has a contract
// address. Tokens without a quote keep the price the position source
// reported.
func (a *Aggregator) reprice(ctx context.Context, tokens []domain.TokenBalance, positions []domain.Position) {
	addrSet := make(map[string]struct{})
	collect := func(tb domain.TokenBalance) {
		if tb.Token.Address != "" {
			addrSet[tb.Token.Address] = struct{}{}
		}
	}
	for _, tb := range tokens {
		collect(tb)
	}
	for _, pos := range positions {
		for _, tb := range pos.Tokens {
			collect(tb)
		}
	}
	if len(addrSet) == 0 {
		return
	}

	addrs := make([]string, 0, len(addrSet))
	for addr := range addrSet {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	prices := a.prices.BatchPrices(ctx, a.chainID, addrs)
	if len(prices) == 0 {
		a.log.Warn("no quotes resolved, keeping provider prices", slog.Int("requested", len(addrs)))
		return
	}

	for i := range tokens {
		if price, ok := prices[tokens[i].Token.Address]; ok {
			tokens[i].Reprice(price)
		}
	}
	for i := range positions {
		for j := range positions[i].Tokens {
			if price, ok := prices[positions[i].Tokens[j].Token.Address]; ok {
				positions[i].Tokens[j].Reprice(price)
			}
		}
		positions[i].RecomputeTotal()
	}
}

// repriceNative overlays a fresh native-coin quote onto wallet tokens. Native
// holdings have no contract address, so the batch endpoint never covers them.
// A failed lookup keeps the price the position source reported.
func (a *Aggregator) repriceNative(ctx context.Context, tokens []domain.TokenBalance) {
	hasNative := false
	for i := range tokens {
		if tokens[i].Token.Standard == domain.StandardNative {
			hasNative = true
			break
		}
	}
	if !hasNative {
		return
	}

	quote, err := a.prices.NativePrice(ctx)
	if err != nil {
		a.log.Warn("native quote unavailable, keeping provider price", slog.String("error", err.Error()))
		return
	}
	for i := range tokens {
		if tokens[i].Token.Standard == domain.StandardNative {
			tokens[i].Reprice(quote)
		}
	}
}

// enrichProtocols fills in missing protocol logos. Metadata lookups are
// additive; failures leave positions untouched.
func (a *Aggregator) enrichProtocols(ctx context.Context, positions []domain.Position) {
	needed := make(map[string]struct{})
	for _, pos := range positions {
		if pos.IsDeFi() && pos.ProtocolLogoURL == "" {
			needed[pos.Protocol] = struct{}{}
		}
	}
	if len(needed) == 0 {
		return
	}

	var mu sync.Mutex
	infos := make(map[string]*domain.ProtocolInfo, len(needed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(protocolFetchConcurrency)
	for name := range needed {
		g.Go(func() error {
			if info := a.protocols.Protocol(gctx, name); info != nil {
				mu.Lock()
				infos[name] = info
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range positions {
		if info, ok := infos[positions[i].Protocol]; ok && positions[i].ProtocolLogoURL == "" {
			positions[i].ProtocolLogoURL = info.LogoURL
		}
	}
}

func dedupeAddresses(addresses []string) ([]string, error) {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if !avalanche.ValidAddress(a) {
			return nil, fmt.Errorf("service: aggregate: address %q: %w", a, domain.ErrInvalidAddress)
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// addRaw sums two base-10 raw balances, falling back to the first operand
// when either fails to parse.
func addRaw(a, b string) string {
	x, okA := new(big.Int).SetString(a, 10)
	y, okB := new(big.Int).SetString(b, 10)
	if !okA || !okB {
		return a
	}
	return x.Add(x, y).String()
}

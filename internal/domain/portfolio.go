package domain

import (
	"strconv"
	"time"
)

// Portfolio is the aggregated view of a wallet on the configured chain:
// deduplicated wallet-level token balances plus DeFi positions, with derived
// totals. TotalValueUSD equals the sum of token balance values and position
// values at every point a Portfolio is handed to a caller.
type Portfolio struct {
	WalletAddress string
	ChainID       int64
	Tokens        []TokenBalance
	Positions     []Position
	TotalValueUSD float64
	TokenCount    int
	ProtocolCount int
	LastUpdated   time.Time
}

// RecomputeTotals rebuilds TotalValueUSD, TokenCount, and ProtocolCount from
// the current token balances and positions. Call after any enrichment step
// that touched values.
func (p *Portfolio) RecomputeTotals() {
	var total float64
	for i := range p.Tokens {
		total += p.Tokens[i].ValueUSD
	}
	for i := range p.Positions {
		total += p.Positions[i].TotalValueUSD
	}
	p.TotalValueUSD = total
	p.TokenCount = len(p.Tokens)

	protocols := make(map[string]struct{})
	for i := range p.Positions {
		if p.Positions[i].IsDeFi() {
			protocols[p.Positions[i].Protocol] = struct{}{}
		}
	}
	p.ProtocolCount = len(protocols)
}

// PortfolioSnapshot is a persisted point-in-time record of a portfolio's
// headline numbers, used for historical change computation and archival.
type PortfolioSnapshot struct {
	ID            string
	WalletAddress string
	ChainID       int64
	TotalValueUSD float64
	TokenCount    int
	PositionCount int
	TakenAt       time.Time
}

// PortfolioChanges holds relative value changes computed from historical
// snapshots, in percent. A period with no snapshot close enough contributes
// zero.
type PortfolioChanges struct {
	Change24h float64
	Change7d  float64
	Change30d float64
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func formatChainID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Package service contains the portfolio aggregation, analytics and insight
// generation pipeline.
package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/avalens/avalens/internal/domain"
)

// VolatilitySignal estimates an asset's volatility for risk scoring. The
// default uses the magnitude of the 24h price change; deployments with a
// better signal (realized vol, implied vol) can inject their own.
type VolatilitySignal func(balance domain.TokenBalance) float64

// DefaultVolatility approximates volatility by the absolute 24h change.
func DefaultVolatility(b domain.TokenBalance) float64 {
	return math.Abs(b.Change24h)
}

// RiskTolerance selects a rebalancing profile.
type RiskTolerance string

const (
	ToleranceLow    RiskTolerance = "low"
	ToleranceMedium RiskTolerance = "medium"
	ToleranceHigh   RiskTolerance = "high"
)

type rebalanceProfile struct {
	maxSingleAssetPct float64
	minDistinctAssets int
}

var rebalanceProfiles = map[RiskTolerance]rebalanceProfile{
	ToleranceLow:    {maxSingleAssetPct: 25, minDistinctAssets: 10},
	ToleranceMedium: {maxSingleAssetPct: 40, minDistinctAssets: 7},
	ToleranceHigh:   {maxSingleAssetPct: 60, minDistinctAssets: 5},
}

// Rebalancing actions. Suggestions are advisory only.
const (
	ActionIncrease = "increase"
	ActionDecrease = "decrease"
	ActionHold     = "hold"
)

// RebalanceSuggestion is one actionable imbalance found in a portfolio.
type RebalanceSuggestion struct {
	Asset      string  `json:"asset"`
	Action     string  `json:"action"`
	CurrentPct float64 `json:"currentPct"`
	TargetPct  float64 `json:"targetPct"`
	Reason     string  `json:"reason"`
}

// AllocationEntry is one line of the asset-level value breakdown.
type AllocationEntry struct {
	Asset    string  `json:"asset"`
	ValueUSD float64 `json:"valueUsd"`
	Pct      float64 `json:"pct"`
}

// Calculator computes portfolio analytics. The zero value is not usable;
// construct with NewCalculator.
type Calculator struct {
	vol VolatilitySignal
}

// NewCalculator builds a calculator. A nil signal selects DefaultVolatility.
func NewCalculator(vol VolatilitySignal) *Calculator {
	if vol == nil {
		vol = DefaultVolatility
	}
	return &Calculator{vol: vol}
}

// holding is one asset-level weight entry: a wallet token or a whole DeFi
// position.
type holding struct {
	label   string
	value   float64
	balance domain.TokenBalance
}

func holdings(p *domain.Portfolio) []holding {
	out := make([]holding, 0, len(p.Tokens)+len(p.Positions))
	for _, t := range p.Tokens {
		if t.ValueUSD <= 0 {
			continue
		}
		out = append(out, holding{label: t.Token.Symbol, value: t.ValueUSD, balance: t})
	}
	for _, pos := range p.Positions {
		if !pos.IsDeFi() || pos.TotalValueUSD <= 0 {
			continue
		}
		h := holding{label: pos.Protocol + " " + string(pos.Type), value: pos.TotalValueUSD}
		if len(pos.Tokens) > 0 {
			h.balance = pos.Tokens[0]
		}
		out = append(out, h)
	}
	return out
}

// DiversificationScore rates concentration on a 0-100 scale using the
// normalized Herfindahl-Hirschman index: 100 means perfectly even weights,
// 0 means everything in a single asset. An empty portfolio scores 0.
func (c *Calculator) DiversificationScore(p *domain.Portfolio) float64 {
	hs := holdings(p)
	total := 0.0
	for _, h := range hs {
		total += h.value
	}
	n := len(hs)
	if n == 0 || total <= 0 {
		return 0
	}
	if n == 1 {
		return 0
	}

	hhi := 0.0
	for _, h := range hs {
		w := h.value / total
		hhi += w * w
	}
	normalized := (hhi - 1/float64(n)) / (1 - 1/float64(n))
	score := math.Round((1 - normalized) * 100)
	return clamp(score, 0, 100)
}

// RiskScore combines concentration, value-weighted volatility and DeFi
// exposure into a 0-100 risk figure (higher is riskier).
func (c *Calculator) RiskScore(p *domain.Portfolio) float64 {
	hs := holdings(p)
	total := 0.0
	for _, h := range hs {
		total += h.value
	}
	if total <= 0 {
		return 0
	}

	weightedVol := 0.0
	for _, h := range hs {
		weightedVol += h.value / total * c.vol(h.balance)
	}

	concentration := 0.3 * (100 - c.DiversificationScore(p))
	volatility := math.Min(weightedVol*10, 40)
	defi := 0.3 * c.DeFiExposurePct(p)

	return clamp(math.Round(concentration+volatility+defi), 0, 100)
}

// DeFiExposurePct is the share of total value held in DeFi positions.
func (c *Calculator) DeFiExposurePct(p *domain.Portfolio) float64 {
	if p.TotalValueUSD <= 0 {
		return 0
	}
	defi := 0.0
	for _, pos := range p.Positions {
		if pos.IsDeFi() {
			defi += pos.TotalValueUSD
		}
	}
	return defi / p.TotalValueUSD * 100
}

// ImpermanentLoss compares a 50/50 LP position against holding both legs,
// given entry and current prices, as a percentage of the hold value.
// Unchanged prices yield zero; one leg doubling against the other yields
// -37.15, meaning the LP is worth 37.15% less than the hold.
func ImpermanentLoss(initialPrice1, initialPrice2, currentPrice1, currentPrice2 float64) (float64, error) {
	if initialPrice1 <= 0 || initialPrice2 <= 0 || currentPrice1 <= 0 || currentPrice2 <= 0 {
		return 0, fmt.Errorf("service: impermanent loss: prices must be positive")
	}
	priceRatio := (currentPrice1 / currentPrice2) / (initialPrice1 / initialPrice2)
	holdValue := (currentPrice1/initialPrice1 + currentPrice2/initialPrice2) / 2
	lpValue := 2 * math.Sqrt(priceRatio) / (1 + priceRatio)
	return (lpValue - holdValue) / holdValue * 100, nil
}

// defaultCompounding is the compounding periods per year assumed when the
// caller passes a non-positive value: daily.
const defaultCompounding = 365

// APRToAPY converts a simple annual rate to a compounded one, both in
// percent.
func APRToAPY(aprPct float64, periodsPerYear int) float64 {
	n := float64(periodsPerYear)
	if n <= 0 {
		n = defaultCompounding
	}
	return (math.Pow(1+aprPct/100/n, n) - 1) * 100
}

// APYToAPR is the inverse of APRToAPY.
func APYToAPR(apyPct float64, periodsPerYear int) float64 {
	n := float64(periodsPerYear)
	if n <= 0 {
		n = defaultCompounding
	}
	return n * (math.Pow(1+apyPct/100, 1/n) - 1) * 100
}

// Allocation is the asset-level value breakdown, largest first. Wallet
// tokens count individually; each DeFi position counts as one asset.
func (c *Calculator) Allocation(p *domain.Portfolio) []AllocationEntry {
	hs := holdings(p)
	total := 0.0
	for _, h := range hs {
		total += h.value
	}
	if total <= 0 {
		return nil
	}

	out := make([]AllocationEntry, 0, len(hs))
	for _, h := range hs {
		out = append(out, AllocationEntry{
			Asset:    h.label,
			ValueUSD: h.value,
			Pct:      round2(h.value / total * 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ValueUSD > out[j].ValueUSD })
	return out
}

// ExpectedAnnualYieldUSD estimates the yearly yield of the portfolio's DeFi
// positions from their advertised rates. Positions quoting only an APR are
// converted assuming daily compounding.
func (c *Calculator) ExpectedAnnualYieldUSD(p *domain.Portfolio) float64 {
	total := 0.0
	for _, pos := range p.Positions {
		if !pos.IsDeFi() || pos.TotalValueUSD <= 0 {
			continue
		}
		apy := pos.APY
		if apy == 0 && pos.APR > 0 {
			apy = APRToAPY(pos.APR, defaultCompounding)
		}
		total += pos.TotalValueUSD * apy / 100
	}
	return total
}

// PositionWeightPct is the share of total portfolio value held in one
// position, in percent.
func PositionWeightPct(p *domain.Portfolio, pos domain.Position) float64 {
	if p.TotalValueUSD <= 0 {
		return 0
	}
	return pos.TotalValueUSD / p.TotalValueUSD * 100
}

// RebalanceSuggestions emits one advisory entry per held asset, largest
// first. Assets above the profile's single-asset cap are pulled down to the
// cap; when the portfolio holds fewer distinct assets than the profile's
// minimum, every target shifts to an even split across that minimum, cap
// entries included. Unknown tolerances fall back to medium. Nothing is
// executed.
func (c *Calculator) RebalanceSuggestions(p *domain.Portfolio, tolerance RiskTolerance) []RebalanceSuggestion {
	profile, ok := rebalanceProfiles[tolerance]
	if !ok {
		profile = rebalanceProfiles[ToleranceMedium]
	}

	alloc := c.Allocation(p)
	if len(alloc) == 0 {
		return nil
	}

	splitTarget := round2(100 / float64(profile.minDistinctAssets))
	underDiversified := len(alloc) < profile.minDistinctAssets

	out := make([]RebalanceSuggestion, 0, len(alloc))
	for _, e := range alloc {
		s := RebalanceSuggestion{
			Asset:      e.Asset,
			Action:     ActionHold,
			CurrentPct: e.Pct,
			TargetPct:  e.Pct,
		}
		if e.Pct > profile.maxSingleAssetPct {
			s.Action = ActionDecrease
			s.TargetPct = profile.maxSingleAssetPct
			s.Reason = fmt.Sprintf("%s is %.1f%% of the portfolio, above the %.0f%% cap for %s risk tolerance",
				e.Asset, e.Pct, profile.maxSingleAssetPct, tolerance)
		}
		if underDiversified {
			s.TargetPct = splitTarget
			if e.Pct < splitTarget {
				s.Action = ActionIncrease
			} else {
				s.Action = ActionDecrease
			}
			s.Reason = fmt.Sprintf("only %d distinct assets held, below the %d recommended for %s risk tolerance; an even split is %.1f%% each",
				len(alloc), profile.minDistinctAssets, tolerance, splitTarget)
		}
		out = append(out, s)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

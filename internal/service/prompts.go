package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avalens/avalens/internal/domain"
)

// responseSchema is appended to every user prompt so the model returns a
// machine-readable payload the extractor can lift out of the reply.
const responseSchema = `Respond with a single JSON object inside a fenced ` + "```json" + ` code block, using exactly this shape:
{
  "title": "short headline, max 150 chars",
  "summary": "2-3 sentence summary, 50-500 chars",
  "detailedAnalysis": "full analysis, 100-5000 chars",
  "severity": "info | low | medium | high | critical",
  "confidence": 0.0,
  "recommendations": [
    {"action": "imperative action", "description": "why and how", "priority": "low | medium | high", "estimatedImpact": "optional expected effect"}
  ],
  "tags": ["topic", "tags"]
}
Do not include any text outside the code block.`

const baseSystemPrompt = `You are a DeFi portfolio analyst covering the Avalanche C-Chain. You are given a snapshot of one wallet's holdings with computed risk metrics. Ground every statement in the numbers provided; never invent protocols, tokens or figures. Do not give definitive financial advice or guarantees, and never speculate about fraud.`

var systemPrompts = map[domain.InsightType]string{
	domain.InsightRiskExposure: baseSystemPrompt + `
Focus on risk: concentration, volatility, protocol exposure and what could impair this portfolio. Be specific about which holdings drive each risk.`,
	domain.InsightRebalancing: baseSystemPrompt + `
Focus on allocation: whether the current weights fit a typical risk profile and what concrete shifts would improve balance. As a rule of thumb, flag any single asset above 20% for conservative, 30% for moderate or 50% for aggressive profiles.`,
	domain.InsightSentimentAlert: baseSystemPrompt + `
Focus on recent movement: 24h price changes and TVL trends across the held tokens and protocols, and whether anything warrants attention today.`,
}

// buildInsightContext renders the portfolio, its computed metrics and
// optional market data into the prompt context block.
func buildInsightContext(p *domain.Portfolio, calc *Calculator, protocols map[string]*domain.ProtocolInfo, market *domain.MarketContext, tolerance RiskTolerance) string {
	if _, ok := rebalanceProfiles[tolerance]; !ok {
		tolerance = ToleranceMedium
	}

	var b strings.Builder

	fmt.Fprintf(&b, "PORTFOLIO (wallet %s, chain %d)\n", p.WalletAddress, p.ChainID)
	fmt.Fprintf(&b, "Total value: $%.2f across %d tokens and %d DeFi protocols\n",
		p.TotalValueUSD, p.TokenCount, p.ProtocolCount)
	fmt.Fprintf(&b, "Diversification score: %.0f/100 (higher is more diversified)\n", calc.DiversificationScore(p))
	fmt.Fprintf(&b, "Risk score: %.0f/100 (higher is riskier)\n", calc.RiskScore(p))
	fmt.Fprintf(&b, "DeFi exposure: %.1f%% of total value\n", calc.DeFiExposurePct(p))
	fmt.Fprintf(&b, "Owner risk tolerance: %s\n\n", tolerance)

	b.WriteString("WALLET TOKENS\n")
	for _, tb := range p.Tokens {
		pct := 0.0
		if p.TotalValueUSD > 0 {
			pct = tb.ValueUSD / p.TotalValueUSD * 100
		}
		fmt.Fprintf(&b, "- %s: %.4f ($%.2f, %.1f%% of portfolio, 24h %+.2f%%)\n",
			tb.Token.Symbol, tb.Balance, tb.ValueUSD, pct, tb.Change24h)
	}

	defi := false
	for _, pos := range p.Positions {
		if !pos.IsDeFi() {
			continue
		}
		if !defi {
			b.WriteString("\nDEFI POSITIONS\n")
			defi = true
		}
		line := fmt.Sprintf("- %s on %s: $%.2f", pos.Type, pos.Protocol, pos.TotalValueUSD)
		if pos.APY > 0 {
			line += fmt.Sprintf(", %.2f%% APY", pos.APY)
		}
		if info, ok := protocols[pos.Protocol]; ok {
			line += fmt.Sprintf(" (protocol TVL $%.0f, 7d TVL change %+.1f%%)", info.TVL, info.TVLChange7d)
		}
		b.WriteString(line + "\n")
	}

	if market != nil && (len(market.TopTokens24hChange) > 0 || len(market.ProtocolTVLChanges) > 0) {
		b.WriteString("\nMARKET CONTEXT\n")
		for _, k := range sortedKeys(market.TopTokens24hChange) {
			fmt.Fprintf(&b, "- %s 24h change: %+.2f%%\n", k, market.TopTokens24hChange[k])
		}
		for _, k := range sortedKeys(market.ProtocolTVLChanges) {
			fmt.Fprintf(&b, "- %s TVL 7d change: %+.2f%%\n", k, market.ProtocolTVLChanges[k])
		}
	}

	return b.String()
}

// promptsFor returns the system and user prompt for one generation.
func promptsFor(insightType domain.InsightType, contextBlock string) (system, user string) {
	system, ok := systemPrompts[insightType]
	if !ok {
		system = baseSystemPrompt
	}
	user = contextBlock + "\n" + responseSchema
	return system, user
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package domain

import "context"

// PositionSource supplies wallet balances and DeFi positions. This is the
// mandatory aggregation input; the implementation must not raise on provider
// failure — it returns an empty slice and logs instead, so the aggregator can
// distinguish "no data" from a thrown error it would have to handle.
type PositionSource interface {
	Positions(ctx context.Context, address string) []Position
}

// PriceSource supplies batched USD quotes keyed by lowercased token address,
// plus a quote for the chain's native coin. Failed batches simply contribute
// no entries; a failed native lookup returns an error so callers can keep the
// price they already have.
type PriceSource interface {
	BatchPrices(ctx context.Context, chainID int64, addresses []string) map[string]TokenPrice
	NativePrice(ctx context.Context) (TokenPrice, error)
}

// MarketSource supplies market-wide quotes, independent of any wallet.
type MarketSource interface {
	TopTokens(ctx context.Context, limit int) ([]TokenPrice, error)
}

// ProtocolSource supplies protocol metadata by slug. A miss yields nil
// silently; enrichment is strictly additive.
type ProtocolSource interface {
	Protocol(ctx context.Context, slug string) *ProtocolInfo
}

// Completion is the raw outcome of one generative-text call.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	DurationMs   int64
}

// CompletionParams configures a single generative-text call.
type CompletionParams struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int64
	Temperature  float64
}

// Completer is the generative-text collaborator. Implementations record a
// UsageRecord for every call, success or failure.
type Completer interface {
	Complete(ctx context.Context, params CompletionParams, wallet string) (Completion, error)
}

// MarketContext is optional market-wide signal handed to the insight
// generator alongside the portfolio.
type MarketContext struct {
	TopTokens24hChange map[string]float64
	ProtocolTVLChanges map[string]float64
}

package domain

import "time"

// APIService identifies an external collaborator for usage accounting.
type APIService string

const (
	ServiceZerion    APIService = "zerion"
	ServiceCoinGecko APIService = "coingecko"
	ServiceDefiLlama APIService = "defillama"
	ServiceAnthropic APIService = "anthropic"
	ServiceAvaxRPC   APIService = "avalanche_rpc"
)

// UsageRecord is one append-only entry per external call attempt sequence.
// Records are written once and never mutated.
type UsageRecord struct {
	ID             string
	WalletAddress  string
	Service        APIService
	Endpoint       string
	Method         string
	RequestedAt    time.Time
	ResponseStatus int
	ResponseTimeMs int64
	TokensUsed     int
	CostUSD        float64
	Error          string
	RetryCount     int
	Model          string
}

// UsageStats summarizes usage records for a service over a period.
type UsageStats struct {
	TotalCostUSD      float64
	TotalRequests     int64
	AvgResponseTimeMs float64
}

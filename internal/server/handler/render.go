package handler

import (
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// Response shapes for the JSON API. Domain types stay tag-free; everything
// that crosses the wire goes through these.

type tokenResponse struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chainId"`
	Standard string `json:"standard"`
	LogoURL  string `json:"logoUrl,omitempty"`
}

type balanceResponse struct {
	Token      tokenResponse `json:"token"`
	RawBalance string        `json:"rawBalance"`
	Balance    float64       `json:"balance"`
	PriceUSD   float64       `json:"priceUsd"`
	ValueUSD   float64       `json:"valueUsd"`
	Change24h  float64       `json:"change24h,omitempty"`
}

type positionResponse struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	Protocol        string            `json:"protocol"`
	ProtocolLogoURL string            `json:"protocolLogoUrl,omitempty"`
	Name            string            `json:"name"`
	ChainID         int64             `json:"chainId"`
	Tokens          []balanceResponse `json:"tokens"`
	TotalValueUSD   float64           `json:"totalValueUsd"`
	APR             float64           `json:"apr,omitempty"`
	APY             float64           `json:"apy,omitempty"`
	PoolShare       float64           `json:"poolShare,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type portfolioResponse struct {
	WalletAddress string             `json:"walletAddress"`
	ChainID       int64              `json:"chainId"`
	Tokens        []balanceResponse  `json:"tokens"`
	Positions     []positionResponse `json:"positions"`
	TotalValueUSD float64            `json:"totalValueUsd"`
	TokenCount    int                `json:"tokenCount"`
	ProtocolCount int                `json:"protocolCount"`
	LastUpdated   time.Time          `json:"lastUpdated"`
}

type snapshotResponse struct {
	TotalValueUSD float64   `json:"totalValueUsd"`
	TokenCount    int       `json:"tokenCount"`
	PositionCount int       `json:"positionCount"`
	TakenAt       time.Time `json:"takenAt"`
}

type changesResponse struct {
	Change24h float64 `json:"change24h"`
	Change7d  float64 `json:"change7d"`
	Change30d float64 `json:"change30d"`
}

type insightResponse struct {
	ID               string                  `json:"id"`
	WalletAddress    string                  `json:"walletAddress"`
	Type             string                  `json:"type"`
	Severity         string                  `json:"severity"`
	Status           string                  `json:"status"`
	Title            string                  `json:"title"`
	Summary          string                  `json:"summary"`
	DetailedAnalysis string                  `json:"detailedAnalysis"`
	Recommendations  []domain.Recommendation `json:"recommendations"`
	Confidence       float64                 `json:"confidence"`
	Tags             []string                `json:"tags"`
	Snapshot         domain.InsightSnapshot  `json:"snapshot"`
	TokensUsed       int                     `json:"tokensUsed"`
	GenerationTimeMs int64                   `json:"generationTimeMs"`
	CostUSD          float64                 `json:"costUsd"`
	CreatedAt        time.Time               `json:"createdAt"`
	ExpiresAt        time.Time               `json:"expiresAt"`
}

func renderBalance(b domain.TokenBalance) balanceResponse {
	return balanceResponse{
		Token: tokenResponse{
			Address:  b.Token.Address,
			Symbol:   b.Token.Symbol,
			Name:     b.Token.Name,
			Decimals: b.Token.Decimals,
			ChainID:  b.Token.ChainID,
			Standard: string(b.Token.Standard),
			LogoURL:  b.Token.LogoURL,
		},
		RawBalance: b.RawBalance,
		Balance:    b.Balance,
		PriceUSD:   b.PriceUSD,
		ValueUSD:   b.ValueUSD,
		Change24h:  b.Change24h,
	}
}

func renderPosition(p domain.Position) positionResponse {
	tokens := make([]balanceResponse, 0, len(p.Tokens))
	for _, b := range p.Tokens {
		tokens = append(tokens, renderBalance(b))
	}
	return positionResponse{
		ID:              p.ID,
		Type:            string(p.Type),
		Protocol:        p.Protocol,
		ProtocolLogoURL: p.ProtocolLogoURL,
		Name:            p.Name,
		ChainID:         p.ChainID,
		Tokens:          tokens,
		TotalValueUSD:   p.TotalValueUSD,
		APR:             p.APR,
		APY:             p.APY,
		PoolShare:       p.PoolShare,
		UpdatedAt:       p.UpdatedAt,
	}
}

func renderPortfolio(p *domain.Portfolio) portfolioResponse {
	tokens := make([]balanceResponse, 0, len(p.Tokens))
	for _, b := range p.Tokens {
		tokens = append(tokens, renderBalance(b))
	}
	positions := make([]positionResponse, 0, len(p.Positions))
	for _, pos := range p.Positions {
		positions = append(positions, renderPosition(pos))
	}
	return portfolioResponse{
		WalletAddress: p.WalletAddress,
		ChainID:       p.ChainID,
		Tokens:        tokens,
		Positions:     positions,
		TotalValueUSD: p.TotalValueUSD,
		TokenCount:    p.TokenCount,
		ProtocolCount: p.ProtocolCount,
		LastUpdated:   p.LastUpdated,
	}
}

func renderSnapshot(s domain.PortfolioSnapshot) snapshotResponse {
	return snapshotResponse{
		TotalValueUSD: s.TotalValueUSD,
		TokenCount:    s.TokenCount,
		PositionCount: s.PositionCount,
		TakenAt:       s.TakenAt,
	}
}

func renderInsight(ins *domain.Insight) insightResponse {
	recs := ins.Recommendations
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	tags := ins.Tags
	if tags == nil {
		tags = []string{}
	}
	return insightResponse{
		ID:               ins.ID,
		WalletAddress:    ins.WalletAddress,
		Type:             string(ins.Type),
		Severity:         string(ins.Severity),
		Status:           string(ins.Status),
		Title:            ins.Title,
		Summary:          ins.Summary,
		DetailedAnalysis: ins.DetailedAnalysis,
		Recommendations:  recs,
		Confidence:       ins.Confidence,
		Tags:             tags,
		Snapshot:         ins.Snapshot,
		TokensUsed:       ins.TokensUsed,
		GenerationTimeMs: ins.GenerationTimeMs,
		CostUSD:          ins.CostUSD,
		CreatedAt:        ins.CreatedAt,
		ExpiresAt:        ins.ExpiresAt,
	}
}

package defillama

import (
	"strconv"

	"github.com/avalens/avalens/internal/domain"
)

// protocolResponse mirrors the single-protocol payload. TVL arrives as a
// time series; the latest point is the current figure.
type protocolResponse struct {
	Name     string     `json:"name"`
	Logo     string     `json:"logo"`
	Category string     `json:"category"`
	Audits   string     `json:"audits"`
	Chains   []string   `json:"chains"`
	TVL      []tvlPoint `json:"tvl"`
	Change1d *float64   `json:"change_1d"`
	Change7d *float64   `json:"change_7d"`
}

type tvlPoint struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

func (r protocolResponse) toDomain(slug string) *domain.ProtocolInfo {
	info := &domain.ProtocolInfo{
		Slug:     slug,
		Name:     r.Name,
		LogoURL:  r.Logo,
		Category: r.Category,
		Chains:   r.Chains,
	}
	if n := len(r.TVL); n > 0 {
		info.TVL = r.TVL[n-1].TotalLiquidityUSD
	}
	if r.Change1d != nil {
		info.TVLChange1d = *r.Change1d
	}
	if r.Change7d != nil {
		info.TVLChange7d = *r.Change7d
	}
	if audits, err := strconv.Atoi(r.Audits); err == nil && audits > 0 {
		info.Audited = true
	}
	return info
}

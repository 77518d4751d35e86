package coingecko

import (
	"strings"
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// tokenPrice mirrors one entry of the simple token price payload.
type tokenPrice struct {
	USD           float64 `json:"usd"`
	USDMarketCap  float64 `json:"usd_market_cap"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	USD24hChange  float64 `json:"usd_24h_change"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

// priceResponse is keyed by contract address. The provider echoes addresses
// in whatever case it prefers, so keys are normalized on conversion.
type priceResponse map[string]tokenPrice

// marketEntry mirrors one row of the coins/markets listing.
type marketEntry struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"current_price"`
	MarketCap     float64 `json:"market_cap"`
	TotalVolume   float64 `json:"total_volume"`
	Change24h     float64 `json:"price_change_percentage_24h"`
	Change7d      float64 `json:"price_change_percentage_7d_in_currency"`
	LastUpdatedAt string  `json:"last_updated"`
}

func (e marketEntry) toDomain(fallback time.Time) domain.TokenPrice {
	updated := fallback
	if ts, err := time.Parse(time.RFC3339, e.LastUpdatedAt); err == nil {
		updated = ts.UTC()
	}
	return domain.TokenPrice{
		Symbol:    strings.ToUpper(e.Symbol),
		PriceUSD:  e.CurrentPrice,
		Change24h: e.Change24h,
		Change7d:  e.Change7d,
		MarketCap: e.MarketCap,
		Volume24h: e.TotalVolume,
		UpdatedAt: updated,
	}
}

func (r priceResponse) toDomain(fallback time.Time) map[string]domain.TokenPrice {
	out := make(map[string]domain.TokenPrice, len(r))
	for addr, p := range r {
		key := strings.ToLower(addr)
		updated := fallback
		if p.LastUpdatedAt > 0 {
			updated = time.Unix(p.LastUpdatedAt, 0).UTC()
		}
		out[key] = domain.TokenPrice{
			Address:   key,
			PriceUSD:  p.USD,
			Change24h: p.USD24hChange,
			MarketCap: p.USDMarketCap,
			Volume24h: p.USD24hVol,
			UpdatedAt: updated,
		}
	}
	return out
}

// Package coingecko implements the token price source on top of the
// CoinGecko simple token price API.
package coingecko

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/platform/rest"
)

// platformIDs maps EVM chain IDs to the provider's asset platform slugs.
var platformIDs = map[int64]string{
	1:     "ethereum",
	10:    "optimistic-ethereum",
	56:    "binance-smart-chain",
	137:   "polygon-pos",
	8453:  "base",
	42161: "arbitrum-one",
	43114: "avalanche",
}

// Client fetches batched USD quotes by contract address. It implements
// domain.PriceSource: a failed batch contributes no entries, so partial
// results merge rather than failing the whole lookup.
type Client struct {
	rest      *rest.Client
	batchSize int
	cacheTTL  time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewClient builds a price source.
func NewClient(cfg config.CoinGeckoConfig, retry config.RetryConfig, cacheTTL time.Duration, cache *rest.Cache, observer rest.Observer, log *slog.Logger) *Client {
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("x-cg-demo-api-key", cfg.APIKey)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 250
	}

	rc := rest.New(rest.Config{
		Service:      string(domain.ServiceCoinGecko),
		BaseURL:      cfg.BaseURL,
		Header:       header,
		MaxRetries:   retry.MaxRetries,
		InitialDelay: retry.InitialDelay(),
		MaxDelay:     retry.MaxDelay(),
		Multiplier:   retry.Multiplier,
	}, cache, observer, log)

	return &Client{
		rest:      rc,
		batchSize: batch,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		log:       log.With(slog.String("component", "coingecko")),
	}
}

// BatchPrices returns quotes keyed by lowercased contract address. Addresses
// are deduplicated and split into provider-sized batches; a batch that fails
// after retries is logged and skipped.
func (c *Client) BatchPrices(ctx context.Context, chainID int64, addresses []string) map[string]domain.TokenPrice {
	platform, ok := platformIDs[chainID]
	if !ok {
		c.log.Error("unsupported chain for pricing", slog.Int64("chain_id", chainID))
		return map[string]domain.TokenPrice{}
	}

	unique := dedupeLower(addresses)
	prices := make(map[string]domain.TokenPrice, len(unique))

	endpoint := fmt.Sprintf("/simple/token_price/%s", platform)
	for start := 0; start < len(unique); start += c.batchSize {
		end := start + c.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		query := url.Values{
			"contract_addresses":      {strings.Join(batch, ",")},
			"vs_currencies":           {"usd"},
			"include_market_cap":      {"true"},
			"include_24hr_vol":        {"true"},
			"include_24hr_change":     {"true"},
			"include_last_updated_at": {"true"},
		}

		var resp priceResponse
		if err := c.rest.GetJSON(ctx, endpoint, query, &resp, c.cacheTTL); err != nil {
			c.log.Warn("price batch failed",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
			continue
		}
		for addr, p := range resp.toDomain(c.now().UTC()) {
			prices[addr] = p
		}
	}

	c.log.Debug("prices fetched",
		slog.Int("requested", len(unique)),
		slog.Int("resolved", len(prices)))
	return prices
}

// nativeID is the provider's asset id for the C-Chain gas coin.
const nativeID = "avalanche-2"

// NativePrice returns the current AVAX quote. Unlike BatchPrices this
// surfaces the error: callers fall back to whatever price they already hold.
func (c *Client) NativePrice(ctx context.Context) (domain.TokenPrice, error) {
	query := url.Values{
		"ids":                 {nativeID},
		"vs_currencies":       {"usd"},
		"include_market_cap":  {"true"},
		"include_24hr_vol":    {"true"},
		"include_24hr_change": {"true"},
	}

	var resp priceResponse
	if err := c.rest.GetJSON(ctx, "/simple/price", query, &resp, c.cacheTTL); err != nil {
		return domain.TokenPrice{}, fmt.Errorf("coingecko: native price: %w", err)
	}
	p, ok := resp[nativeID]
	if !ok {
		return domain.TokenPrice{}, fmt.Errorf("coingecko: native price: %q missing from response", nativeID)
	}

	return domain.TokenPrice{
		Symbol:    "AVAX",
		PriceUSD:  p.USD,
		Change24h: p.USD24hChange,
		MarketCap: p.USDMarketCap,
		Volume24h: p.USD24hVol,
		UpdatedAt: c.now().UTC(),
	}, nil
}

// TopTokens lists the market-cap leaders with their 24h and 7d changes.
// It implements domain.MarketSource.
func (c *Client) TopTokens(ctx context.Context, limit int) ([]domain.TokenPrice, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{
		"vs_currency":             {"usd"},
		"order":                   {"market_cap_desc"},
		"per_page":                {strconv.Itoa(limit)},
		"page":                    {"1"},
		"price_change_percentage": {"24h,7d"},
	}

	var entries []marketEntry
	if err := c.rest.GetJSON(ctx, "/coins/markets", query, &entries, c.cacheTTL); err != nil {
		return nil, fmt.Errorf("coingecko: top tokens: %w", err)
	}

	now := c.now().UTC()
	out := make([]domain.TokenPrice, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toDomain(now))
	}
	return out, nil
}

func dedupeLower(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Package zerion implements the wallet position source on top of the Zerion
// wallet API.
package zerion

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/platform/rest"
)

// chainNames maps EVM chain IDs to the provider's chain identifiers.
var chainNames = map[int64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "binance-smart-chain",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
	43114: "avalanche",
}

// Client fetches wallet balances and DeFi positions. It implements
// domain.PositionSource: provider failures are logged and surface as an empty
// slice, never as an error.
type Client struct {
	rest      *rest.Client
	chainID   int64
	chainName string
	cacheTTL  time.Duration
	log       *slog.Logger
}

// NewClient builds a position source for the configured chain.
func NewClient(cfg config.ZerionConfig, chain config.ChainConfig, retry config.RetryConfig, cacheTTL time.Duration, cache *rest.Cache, observer rest.Observer, log *slog.Logger) (*Client, error) {
	name, ok := chainNames[chain.ID]
	if !ok {
		return nil, fmt.Errorf("zerion: unsupported chain id %d", chain.ID)
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":"))
		header.Set("Authorization", "Basic "+cred)
	}

	rc := rest.New(rest.Config{
		Service:      string(domain.ServiceZerion),
		BaseURL:      cfg.BaseURL,
		Header:       header,
		MaxRetries:   retry.MaxRetries,
		InitialDelay: retry.InitialDelay(),
		MaxDelay:     retry.MaxDelay(),
		Multiplier:   retry.Multiplier,
	}, cache, observer, log)

	return &Client{
		rest:      rc,
		chainID:   chain.ID,
		chainName: name,
		cacheTTL:  cacheTTL,
		log:       log.With(slog.String("component", "zerion")),
	}, nil
}

// Positions returns every displayable position the wallet holds on the
// configured chain, wallet tokens included. Hidden, spam-flagged and
// cross-chain entries are filtered out.
func (c *Client) Positions(ctx context.Context, address string) []domain.Position {
	endpoint := fmt.Sprintf("/wallets/%s/positions/", url.PathEscape(address))
	query := url.Values{
		"currency":          {"usd"},
		"filter[positions]": {"no_filter"},
		"filter[chain_ids]": {c.chainName},
		"filter[trash]":     {"only_non_trash"},
		"sort":              {"value"},
	}

	var resp positionsResponse
	if err := c.rest.GetJSON(ctx, endpoint, query, &resp, c.cacheTTL); err != nil {
		c.log.Error("fetch positions failed",
			slog.String("address", address),
			slog.String("error", err.Error()))
		return nil
	}

	positions := make([]domain.Position, 0, len(resp.Data))
	dropped := 0
	for _, d := range resp.Data {
		pos, ok := d.toDomain(c.chainID, c.chainName)
		if !ok {
			dropped++
			continue
		}
		positions = append(positions, pos)
	}

	c.log.Debug("positions fetched",
		slog.String("address", address),
		slog.Int("kept", len(positions)),
		slog.Int("dropped", dropped))
	return positions
}

// InvalidateWallet drops any cached position responses for address so the
// next call hits the provider.
func (c *Client) InvalidateWallet(address string) {
	c.rest.InvalidateEndpoint(fmt.Sprintf("/wallets/%s/positions/", url.PathEscape(address)))
}

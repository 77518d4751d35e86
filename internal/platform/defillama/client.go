// Package defillama implements the protocol metadata source on top of the
// DefiLlama API, plus a TVL-based risk heuristic.
package defillama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/platform/rest"
)

// Client fetches protocol metadata by slug. It implements
// domain.ProtocolSource: misses and failures yield nil, because enrichment is
// strictly additive and must never block aggregation.
type Client struct {
	rest     *rest.Client
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewClient builds a protocol source.
func NewClient(cfg config.DefiLlamaConfig, retry config.RetryConfig, cacheTTL time.Duration, cache *rest.Cache, observer rest.Observer, log *slog.Logger) *Client {
	rc := rest.New(rest.Config{
		Service:      string(domain.ServiceDefiLlama),
		BaseURL:      cfg.BaseURL,
		MaxRetries:   retry.MaxRetries,
		InitialDelay: retry.InitialDelay(),
		MaxDelay:     retry.MaxDelay(),
		Multiplier:   retry.Multiplier,
	}, cache, observer, log)

	return &Client{
		rest:     rc,
		cacheTTL: cacheTTL,
		log:      log.With(slog.String("component", "defillama")),
	}
}

// Slugify converts a display protocol name to the provider's slug form:
// lowercased with whitespace collapsed to single hyphens.
func Slugify(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, "-")
}

// Protocol fetches metadata for the given slug. Unknown protocols and
// provider failures return nil.
func (c *Client) Protocol(ctx context.Context, slug string) *domain.ProtocolInfo {
	slug = Slugify(slug)
	if slug == "" {
		return nil
	}

	endpoint := fmt.Sprintf("/protocol/%s", url.PathEscape(slug))

	var resp protocolResponse
	if err := c.rest.GetJSON(ctx, endpoint, nil, &resp, c.cacheTTL); err != nil {
		var se *rest.StatusError
		if errors.As(err, &se) && (se.Code == 400 || se.Code == 404) {
			c.log.Debug("protocol unknown", slog.String("slug", slug))
		} else {
			c.log.Warn("protocol fetch failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()))
		}
		return nil
	}
	return resp.toDomain(slug)
}

// RiskLevel scores a protocol as "low", "medium" or "high" from its TVL,
// 7-day TVL trend, audit status and chain spread. Higher TVL, audits and a
// broad multi-chain footprint lower the risk; a steep 7-day TVL drop raises
// it.
func RiskLevel(info *domain.ProtocolInfo) string {
	if info == nil {
		return "high"
	}

	score := 0
	switch {
	case info.TVL >= 1_000_000_000:
		score -= 2
	case info.TVL >= 100_000_000:
		score--
	case info.TVL < 10_000_000:
		score += 2
	}
	if info.TVLChange7d <= -20 {
		score += 2
	} else if info.TVLChange7d <= -10 {
		score++
	}
	if info.Audited {
		score--
	} else {
		score++
	}
	if len(info.Chains) >= 3 {
		score--
	}

	switch {
	case score <= -2:
		return "low"
	case score <= 1:
		return "medium"
	default:
		return "high"
	}
}

// Package anthropic implements the generative-text collaborator on top of
// the Anthropic Messages API, with per-call cost accounting.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
)

// modelPricing maps model name prefixes to USD cost per million tokens.
// Matched longest-prefix-first; unknown models are billed at zero and logged.
var modelPricing = []struct {
	prefix    string
	inputPerM float64
	outPerM   float64
}{
	{"claude-opus", 15.00, 75.00},
	{"claude-sonnet", 3.00, 15.00},
	{"claude-3-7-sonnet", 3.00, 15.00},
	{"claude-3-5-sonnet", 3.00, 15.00},
	{"claude-3-5-haiku", 0.80, 4.00},
	{"claude-haiku", 1.00, 5.00},
}

// Client wraps the Messages API. It implements domain.Completer and writes
// one usage record per call, success or failure.
type Client struct {
	sdk   sdk.Client
	cfg   config.AnthropicConfig
	usage domain.UsageStore
	log   *slog.Logger
	now   func() time.Time
}

// NewClient builds a completer. usage may be nil, which disables accounting.
func NewClient(cfg config.AnthropicConfig, usage domain.UsageStore, log *slog.Logger) *Client {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		sdk:   sdk.NewClient(opts...),
		cfg:   cfg,
		usage: usage,
		log:   log.With(slog.String("component", "anthropic")),
		now:   time.Now,
	}
}

// Complete runs a single prompt pair through the model and returns the text
// of the first content block together with token usage and estimated cost.
func (c *Client) Complete(ctx context.Context, params domain.CompletionParams, wallet string) (domain.Completion, error) {
	model := params.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	start := c.now()
	msg, err := c.sdk.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(params.Temperature),
		System: []sdk.TextBlockParam{
			{Text: params.SystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(params.UserPrompt)),
		},
	})
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		c.record(ctx, wallet, model, durationMs, 0, 0, err)
		return domain.Completion{}, fmt.Errorf("anthropic: completion: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	cost := Cost(model, in, out)
	if _, ok := pricingFor(model); !ok {
		c.log.Warn("no pricing for model, cost recorded as zero", slog.String("model", model))
	}
	c.record(ctx, wallet, model, durationMs, in+out, cost, nil)

	return domain.Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		DurationMs:   durationMs,
	}, nil
}

// Cost estimates the USD price of a call from the published per-token rates.
func Cost(model string, inputTokens, outputTokens int) float64 {
	r, ok := pricingFor(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*r.inPerM + float64(outputTokens)/1e6*r.outPerM
}

type modelRates struct {
	inPerM  float64
	outPerM float64
}

// pricingFor resolves the longest matching pricing prefix for a model name.
func pricingFor(model string) (modelRates, bool) {
	var best modelRates
	bestLen := 0
	for _, p := range modelPricing {
		if strings.HasPrefix(model, p.prefix) && len(p.prefix) > bestLen {
			bestLen = len(p.prefix)
			best = modelRates{inPerM: p.inputPerM, outPerM: p.outPerM}
		}
	}
	return best, bestLen > 0
}

func (c *Client) record(ctx context.Context, wallet, model string, durationMs int64, tokens int, cost float64, callErr error) {
	if c.usage == nil {
		return
	}
	rec := domain.UsageRecord{
		ID:             uuid.NewString(),
		WalletAddress:  wallet,
		Service:        domain.ServiceAnthropic,
		Endpoint:       "/v1/messages",
		Method:         "POST",
		RequestedAt:    c.now().UTC(),
		ResponseTimeMs: durationMs,
		TokensUsed:     tokens,
		CostUSD:        cost,
		Model:          model,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	// Usage accounting must survive a canceled request context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.usage.Append(wctx, rec); err != nil {
		c.log.Warn("usage record write failed", slog.String("error", err.Error()))
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
)

// InsightNotifier receives completed insights for fan-out to notification
// channels. Implementations decide which severities they care about.
type InsightNotifier interface {
	InsightGenerated(ctx context.Context, ins *domain.Insight)
}

// fencedJSONRe lifts the JSON object out of a ```json code fence.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// insightPayload mirrors the JSON object the model is asked to produce.
type insightPayload struct {
	Title            string                  `json:"title"`
	Summary          string                  `json:"summary"`
	DetailedAnalysis string                  `json:"detailedAnalysis"`
	Severity         string                  `json:"severity"`
	Confidence       float64                 `json:"confidence"`
	Recommendations  []domain.Recommendation `json:"recommendations"`
	Tags             []string                `json:"tags"`
}

// Generator runs the insight pipeline: build context, prompt the model,
// parse and validate the reply, persist and notify. One Generator serves all
// wallets.
type Generator struct {
	calc      *Calculator
	completer domain.Completer
	store     domain.InsightStore
	limiter   domain.RateLimiter
	notifier  InsightNotifier
	cfg       config.InsightsConfig
	model     config.AnthropicConfig
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGenerator builds a generator. limiter and notifier may be nil, which
// disables rate limiting and notifications respectively.
func NewGenerator(calc *Calculator, completer domain.Completer, store domain.InsightStore, limiter domain.RateLimiter, notifier InsightNotifier, cfg config.InsightsConfig, model config.AnthropicConfig, log *slog.Logger) *Generator {
	return &Generator{
		calc:      calc,
		completer: completer,
		store:     store,
		limiter:   limiter,
		notifier:  notifier,
		cfg:       cfg,
		model:     model,
		log:       log.With(slog.String("component", "insights")),
		now:       time.Now,
		newID:     uuid.NewString,
		sleep:     sleepInsight,
	}
}

// Allow consults the rate limiter for one generation on behalf of wallet.
// A limiter failure fails open: generation availability wins over strict
// limiting.
func (g *Generator) Allow(ctx context.Context, wallet string) bool {
	if g.limiter == nil {
		return true
	}
	window := time.Duration(g.cfg.RateWindowSec) * time.Second
	ok, err := g.limiter.Allow(ctx, "insights:"+strings.ToLower(wallet), g.cfg.RateLimit, window)
	if err != nil {
		g.log.Warn("rate limiter unavailable, allowing", slog.String("error", err.Error()))
		return true
	}
	return ok
}

// Generate produces one insight of the given type for the portfolio. The
// returned result always accounts tokens and cost, even when generation
// fails. Persistence failures are logged, never propagated: the caller still
// gets the insight.
func (g *Generator) Generate(ctx context.Context, p *domain.Portfolio, insightType domain.InsightType, protocols map[string]*domain.ProtocolInfo, market *domain.MarketContext, tolerance RiskTolerance) domain.GenerationResult {
	contextBlock := buildInsightContext(p, g.calc, protocols, market, tolerance)
	system, user := promptsFor(insightType, contextBlock)

	completion, err := g.completer.Complete(ctx, domain.CompletionParams{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        g.model.Model,
		MaxTokens:    g.model.MaxTokens,
		Temperature:  g.model.Temperature,
	}, p.WalletAddress)
	if err != nil {
		g.log.Error("completion failed",
			slog.String("wallet", p.WalletAddress),
			slog.String("type", string(insightType)),
			slog.String("error", err.Error()))
		return domain.GenerationResult{Err: err.Error()}
	}

	result := domain.GenerationResult{
		TokensUsed: completion.InputTokens + completion.OutputTokens,
		CostUSD:    completion.CostUSD,
		DurationMs: completion.DurationMs,
	}

	payload, err := parsePayload(completion.Text)
	if err != nil {
		g.log.Error("unparsable completion",
			slog.String("wallet", p.WalletAddress),
			slog.String("type", string(insightType)),
			slog.Int("discarded_tokens", result.TokensUsed))
		// The result carries no tokens or cost: the usage record written by
		// the completer is the accounting source for discarded replies.
		return domain.GenerationResult{Err: err.Error(), DurationMs: completion.DurationMs}
	}

	now := g.now().UTC()
	ins := &domain.Insight{
		ID:               g.newID(),
		WalletAddress:    strings.ToLower(p.WalletAddress),
		Type:             insightType,
		Severity:         domain.InsightSeverity(strings.ToLower(payload.Severity)),
		Status:           domain.StatusCompleted,
		Title:            payload.Title,
		Summary:          payload.Summary,
		DetailedAnalysis: payload.DetailedAnalysis,
		Recommendations:  payload.Recommendations,
		Confidence:       payload.Confidence,
		Tags:             payload.Tags,
		Snapshot: domain.InsightSnapshot{
			TotalValueUSD:        p.TotalValueUSD,
			TokenCount:           p.TokenCount,
			PositionCount:        len(p.Positions),
			RiskScore:            int(math.Round(g.calc.RiskScore(p))),
			DiversificationScore: int(math.Round(g.calc.DiversificationScore(p))),
		},
		TokensUsed:       result.TokensUsed,
		GenerationTimeMs: completion.DurationMs,
		CostUSD:          completion.CostUSD,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, g.cfg.ExpiryDays),
	}

	validation := ValidateInsight(ins)
	for _, w := range validation.Warnings {
		g.log.Warn("insight validation warning",
			slog.String("insight_id", ins.ID),
			slog.String("warning", w))
	}
	if !validation.Valid() {
		joined := strings.Join(validation.Errors, "; ")
		if g.cfg.ValidationMode == "strict" {
			g.log.Error("insight rejected by strict validation",
				slog.String("insight_id", ins.ID),
				slog.String("errors", joined))
			result.Err = fmt.Sprintf("validation failed: %s", joined)
			return result
		}
		g.log.Warn("insight has validation errors, completing anyway",
			slog.String("insight_id", ins.ID),
			slog.String("errors", joined))
	}

	if err := g.store.Save(ctx, *ins); err != nil {
		g.log.Error("insight save failed",
			slog.String("insight_id", ins.ID),
			slog.String("error", err.Error()))
	}

	if g.notifier != nil && (ins.Severity == domain.SeverityHigh || ins.Severity == domain.SeverityCritical) {
		g.notifier.InsightGenerated(ctx, ins)
	}

	g.log.Info("insight generated",
		slog.String("insight_id", ins.ID),
		slog.String("wallet", ins.WalletAddress),
		slog.String("type", string(insightType)),
		slog.String("severity", string(ins.Severity)),
		slog.Int("tokens", result.TokensUsed),
		slog.Float64("cost_usd", result.CostUSD))

	result.Insight = ins
	return result
}

// GenerateBatch runs one generation per requested type, pausing between
// calls to stay under provider rate limits. A failed type does not stop the
// rest of the batch.
func (g *Generator) GenerateBatch(ctx context.Context, p *domain.Portfolio, types []domain.InsightType, protocols map[string]*domain.ProtocolInfo, market *domain.MarketContext, tolerance RiskTolerance) []domain.GenerationResult {
	delay := time.Duration(g.cfg.BatchDelayMs) * time.Millisecond
	results := make([]domain.GenerationResult, 0, len(types))
	for i, it := range types {
		if i > 0 && delay > 0 {
			if err := g.sleep(ctx, delay); err != nil {
				results = append(results, domain.GenerationResult{Err: err.Error()})
				continue
			}
		}
		results = append(results, g.Generate(ctx, p, it, protocols, market, tolerance))
	}
	return results
}

// PruneExpired deletes insights whose expiry has passed and reports how many
// were removed.
func (g *Generator) PruneExpired(ctx context.Context) (int64, error) {
	n, err := g.store.DeleteExpired(ctx, g.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service: prune insights: %w", err)
	}
	if n > 0 {
		g.log.Info("expired insights pruned", slog.Int64("count", n))
	}
	return n, nil
}

// parsePayload extracts and decodes the JSON object from the model reply.
// A fenced ```json block is preferred; a bare object is accepted as a
// fallback.
func parsePayload(text string) (insightPayload, error) {
	raw := ""
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			raw = text[start : end+1]
		}
	}
	if raw == "" {
		return insightPayload{}, domain.ErrUnparsable
	}

	var payload insightPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return insightPayload{}, fmt.Errorf("%w: %w", domain.ErrUnparsable, err)
	}
	return payload, nil
}

func sleepInsight(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

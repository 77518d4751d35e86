package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
)

const validReply = "Here is the analysis you asked for.\n```json\n" + `{
  "title": "High concentration in AVAX",
  "summary": "AVAX represents over a third of this portfolio, which concentrates directional risk in a single volatile asset.",
  "detailedAnalysis": "The wallet holds a significant AVAX allocation relative to its stablecoin and DeFi holdings. A broad market drawdown would hit this portfolio harder than a more evenly weighted one, and the staked positions add protocol exposure on top of price exposure.",
  "severity": "high",
  "confidence": 0.82,
  "recommendations": [
    {"action": "Review AVAX allocation", "description": "Consider trimming AVAX toward 25% of total value", "priority": "medium"}
  ],
  "tags": ["concentration", "avax"]
}` + "\n```\n"

type fakeCompleter struct {
	reply string
	err   error
	calls []domain.CompletionParams
}

func (f *fakeCompleter) Complete(_ context.Context, params domain.CompletionParams, _ string) (domain.Completion, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return domain.Completion{}, f.err
	}
	return domain.Completion{
		Text:         f.reply,
		Model:        params.Model,
		InputTokens:  1200,
		OutputTokens: 400,
		CostUSD:      0.0025,
		DurationMs:   850,
	}, nil
}

type memInsightStore struct {
	saved   []domain.Insight
	saveErr error
}

func (m *memInsightStore) Save(_ context.Context, ins domain.Insight) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, ins)
	return nil
}

func (m *memInsightStore) GetByID(_ context.Context, id string) (domain.Insight, error) {
	for _, ins := range m.saved {
		if ins.ID == id {
			return ins, nil
		}
	}
	return domain.Insight{}, domain.ErrNotFound
}

func (m *memInsightStore) ListByWallet(_ context.Context, wallet string, _ domain.ListOpts) ([]domain.Insight, error) {
	var out []domain.Insight
	for _, ins := range m.saved {
		if ins.WalletAddress == wallet {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (m *memInsightStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var kept []domain.Insight
	var n int64
	for _, ins := range m.saved {
		if ins.ExpiresAt.Before(now) {
			n++
			continue
		}
		kept = append(kept, ins)
	}
	m.saved = kept
	return n, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type fakeNotifier struct {
	notified []*domain.Insight
}

func (f *fakeNotifier) InsightGenerated(_ context.Context, ins *domain.Insight) {
	f.notified = append(f.notified, ins)
}

func insightsConfig() config.InsightsConfig {
	return config.InsightsConfig{
		ValidationMode: "warn",
		ExpiryDays:     7,
		RateLimit:      5,
		RateWindowSec:  3600,
		BatchDelayMs:   1000,
	}
}

func newTestGenerator(completer *fakeCompleter, store *memInsightStore, notifier InsightNotifier, cfg config.InsightsConfig) *Generator {
	g := NewGenerator(NewCalculator(nil), completer, store, nil, notifier, cfg,
		config.AnthropicConfig{Model: "claude-3-5-haiku-latest", MaxTokens: 2048, Temperature: 0.7},
		testLogger())
	g.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	g.newID = func() string { return "ins-1" }
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGenerateHappyPath(t *testing.T) {
	completer := &fakeCompleter{reply: validReply}
	store := &memInsightStore{}
	notifier := &fakeNotifier{}
	g := newTestGenerator(completer, store, notifier, insightsConfig())

	p := sixAssetPortfolio()
	res := g.Generate(context.Background(), p, domain.InsightRiskExposure, nil, nil, ToleranceLow)

	require.False(t, res.Failed())
	ins := res.Insight
	assert.Equal(t, "ins-1", ins.ID)
	assert.Equal(t, "0xabc", ins.WalletAddress)
	assert.Equal(t, domain.SeverityHigh, ins.Severity)
	assert.Equal(t, domain.StatusCompleted, ins.Status)
	assert.Equal(t, 1600, ins.TokensUsed)
	assert.Equal(t, 0.0025, ins.CostUSD)
	assert.Equal(t, time.Date(2026, 8, 8, 12, 0, 0, 0, time.UTC), ins.ExpiresAt, "seven day expiry")

	assert.InDelta(t, 125487.32, ins.Snapshot.TotalValueUSD, 0.01)
	assert.Equal(t, 92, ins.Snapshot.DiversificationScore)
	assert.Equal(t, 36, ins.Snapshot.RiskScore)

	require.Len(t, store.saved, 1)
	require.Len(t, notifier.notified, 1, "high severity triggers a notification")

	require.Len(t, completer.calls, 1)
	assert.Contains(t, completer.calls[0].UserPrompt, "Total value: $125487.32")
	assert.Contains(t, completer.calls[0].UserPrompt, "Owner risk tolerance: low")
	assert.Contains(t, completer.calls[0].SystemPrompt, "Focus on risk")
}

func TestGenerateCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("api down")}
	store := &memInsightStore{}
	g := newTestGenerator(completer, store, nil, insightsConfig())

	res := g.Generate(context.Background(), sixAssetPortfolio(), domain.InsightRebalancing, nil, nil, ToleranceMedium)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Err, "api down")
	assert.Empty(t, store.saved)
}

func TestGenerateUnparsableReply(t *testing.T) {
	completer := &fakeCompleter{reply: "I cannot produce JSON today."}
	store := &memInsightStore{}
	g := newTestGenerator(completer, store, nil, insightsConfig())

	res := g.Generate(context.Background(), sixAssetPortfolio(), domain.InsightRiskExposure, nil, nil, ToleranceMedium)
	assert.True(t, res.Failed())
	assert.NotEmpty(t, res.Err)
	assert.Zero(t, res.TokensUsed, "discarded replies carry no token accounting")
	assert.Zero(t, res.CostUSD)
	assert.Equal(t, int64(850), res.DurationMs)
	assert.Empty(t, store.saved)
}

func TestGenerateValidationModes(t *testing.T) {
	// Reply with a summary far too short to pass validation.
	badReply := strings.Replace(validReply,
		"AVAX represents over a third of this portfolio, which concentrates directional risk in a single volatile asset.",
		"Too short.", 1)

	warnCfg := insightsConfig()
	gWarn := newTestGenerator(&fakeCompleter{reply: badReply}, &memInsightStore{}, nil, warnCfg)
	res := gWarn.Generate(context.Background(), sixAssetPortfolio(), domain.InsightRiskExposure, nil, nil, ToleranceMedium)
	assert.False(t, res.Failed(), "warn mode completes despite validation errors")

	strictCfg := insightsConfig()
	strictCfg.ValidationMode = "strict"
	strictStore := &memInsightStore{}
	gStrict := newTestGenerator(&fakeCompleter{reply: badReply}, strictStore, nil, strictCfg)
	res = gStrict.Generate(context.Background(), sixAssetPortfolio(), domain.InsightRiskExposure, nil, nil, ToleranceMedium)
	assert.True(t, res.Failed(), "strict mode rejects invalid insights")
	assert.Contains(t, res.Err, "validation failed")
	assert.Empty(t, strictStore.saved)
}

func TestGenerateSurvivesSaveFailure(t *testing.T) {
	store := &memInsightStore{saveErr: errors.New("db down")}
	g := newTestGenerator(&fakeCompleter{reply: validReply}, store, nil, insightsConfig())

	res := g.Generate(context.Background(), sixAssetPortfolio(), domain.InsightRiskExposure, nil, nil, ToleranceMedium)
	assert.False(t, res.Failed(), "a failed save is logged, not propagated")
}

func TestGenerateBatch(t *testing.T) {
	completer := &fakeCompleter{reply: validReply}
	g := newTestGenerator(completer, &memInsightStore{}, nil, insightsConfig())

	var slept int
	g.sleep = func(context.Context, time.Duration) error { slept++; return nil }

	types := []domain.InsightType{domain.InsightRiskExposure, domain.InsightRebalancing, domain.InsightSentimentAlert}
	results := g.GenerateBatch(context.Background(), sixAssetPortfolio(), types, nil, nil, ToleranceHigh)

	require.Len(t, results, 3)
	assert.Equal(t, 2, slept, "delay between generations, not before the first")
	for _, r := range results {
		assert.False(t, r.Failed())
	}
}

func TestAllowFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{allow: false, err: errors.New("redis down")}
	g := NewGenerator(NewCalculator(nil), &fakeCompleter{}, &memInsightStore{}, limiter, nil,
		insightsConfig(), config.AnthropicConfig{}, testLogger())

	assert.True(t, g.Allow(context.Background(), "0xABC"))
	require.Len(t, limiter.keys, 1)
	assert.Equal(t, "insights:0xabc", limiter.keys[0])

	limiter.err = nil
	assert.False(t, g.Allow(context.Background(), "0xabc"))
}

func TestPruneExpired(t *testing.T) {
	store := &memInsightStore{saved: []domain.Insight{
		{ID: "old", ExpiresAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "fresh", ExpiresAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}}
	g := newTestGenerator(&fakeCompleter{}, store, nil, insightsConfig())

	n, err := g.PruneExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "fresh", store.saved[0].ID)
}

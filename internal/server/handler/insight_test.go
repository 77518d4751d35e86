package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/service"
)

type fakeInsightReader struct {
	insights []domain.Insight
	err      error

	wallet string
	opts   domain.ListOpts
}

func (f *fakeInsightReader) GetByID(_ context.Context, id string) (domain.Insight, error) {
	for _, ins := range f.insights {
		if ins.ID == id {
			return ins, nil
		}
	}
	return domain.Insight{}, domain.ErrNotFound
}

func (f *fakeInsightReader) ListByWallet(_ context.Context, wallet string, opts domain.ListOpts) ([]domain.Insight, error) {
	f.wallet = wallet
	f.opts = opts
	return f.insights, f.err
}

type fakeGenerator struct {
	allowed bool
	results []domain.GenerationResult

	generated []domain.InsightType
	tolerance service.RiskTolerance
}

func (f *fakeGenerator) Allow(_ context.Context, _ string) bool {
	return f.allowed
}

func (f *fakeGenerator) GenerateBatch(_ context.Context, _ *domain.Portfolio, types []domain.InsightType, _ map[string]*domain.ProtocolInfo, _ *domain.MarketContext, tolerance service.RiskTolerance) []domain.GenerationResult {
	f.generated = types
	f.tolerance = tolerance
	if f.results != nil {
		return f.results
	}
	out := make([]domain.GenerationResult, 0, len(types))
	for _, it := range types {
		out = append(out, domain.GenerationResult{
			Insight: &domain.Insight{
				ID:       "ins-" + string(it),
				Type:     it,
				Severity: domain.SeverityMedium,
				Status:   domain.StatusCompleted,
			},
			TokensUsed: 1600,
			CostUSD:    0.0025,
		})
	}
	return out
}

type fakePortfolioSource struct {
	portfolio *domain.Portfolio
	err       error
}

func (f *fakePortfolioSource) Fetch(_ context.Context, _ []string) (*domain.Portfolio, error) {
	return f.portfolio, f.err
}

func (f *fakePortfolioSource) ProtocolDetails(_ context.Context, _ *domain.Portfolio) map[string]*domain.ProtocolInfo {
	return nil
}

func (f *fakePortfolioSource) MarketOverview(_ context.Context, _ map[string]*domain.ProtocolInfo) *domain.MarketContext {
	return nil
}

func insightMux(h *InsightHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/insights/{address}", h.ListInsights)
	mux.HandleFunc("POST /api/insights/{address}/generate", h.GenerateInsights)
	mux.HandleFunc("GET /api/insight/{id}", h.GetInsight)
	return mux
}

func TestGetInsight(t *testing.T) {
	reader := &fakeInsightReader{
		insights: []domain.Insight{{ID: "ins-1", Title: "Concentrated exposure"}},
	}
	h := NewInsightHandler(reader, &fakeGenerator{allowed: true}, &fakePortfolioSource{}, discardLogger())

	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/insight/ins-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body insightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Concentrated exposure", body.Title)

	rec = httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/insight/ins-404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInsights(t *testing.T) {
	reader := &fakeInsightReader{
		insights: []domain.Insight{
			{
				ID:            "ins-1",
				WalletAddress: "0xaaa",
				Type:          domain.InsightRiskExposure,
				Severity:      domain.SeverityHigh,
				Status:        domain.StatusCompleted,
				Title:         "Concentrated exposure",
				CreatedAt:     time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
			},
		},
	}
	h := NewInsightHandler(reader, &fakeGenerator{allowed: true}, &fakePortfolioSource{}, discardLogger())

	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/insights/0xAAA?limit=10&offset=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xaaa", reader.wallet)
	assert.Equal(t, domain.ListOpts{Limit: 10, Offset: 5}, reader.opts)

	var body listInsightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Insights, 1)
	assert.Equal(t, "risk-exposure", body.Insights[0].Type)
	assert.NotNil(t, body.Insights[0].Recommendations)
}

func TestGenerateInsightsDefaultsToAllTypes(t *testing.T) {
	gen := &fakeGenerator{allowed: true}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/insights/0xAAA/generate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.InsightType{
		domain.InsightRiskExposure,
		domain.InsightRebalancing,
		domain.InsightSentimentAlert,
	}, gen.generated)
	assert.Equal(t, service.ToleranceMedium, gen.tolerance, "tolerance defaults to medium")

	var body generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0xaaa", body.WalletAddress)
	require.Len(t, body.Results, 3)
	assert.Equal(t, "rebalancing", body.Results[1].Type)
	assert.Equal(t, "completed", body.Results[1].Status)
	require.NotNil(t, body.Results[1].Insight)
}

func TestGenerateInsightsSelectedType(t *testing.T) {
	gen := &fakeGenerator{allowed: true}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/insights/0xaaa/generate",
		strings.NewReader(`{"types":["rebalancing"],"riskTolerance":"Low"}`))
	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.InsightType{domain.InsightRebalancing}, gen.generated)
	assert.Equal(t, service.ToleranceLow, gen.tolerance)
}

func TestGenerateInsightsUnknownTolerance(t *testing.T) {
	gen := &fakeGenerator{allowed: true}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/insights/0xaaa/generate",
		strings.NewReader(`{"riskTolerance":"degen"}`))
	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, gen.generated)
}

func TestGenerateInsightsUnknownType(t *testing.T) {
	gen := &fakeGenerator{allowed: true}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/insights/0xaaa/generate",
		strings.NewReader(`{"types":["yield-chasing"]}`))
	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, gen.generated)
}

func TestGenerateInsightsRateLimited(t *testing.T) {
	gen := &fakeGenerator{allowed: false}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/insights/0xaaa/generate", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Empty(t, gen.generated)
}

func TestGenerateInsightsFailedEntry(t *testing.T) {
	gen := &fakeGenerator{
		allowed: true,
		results: []domain.GenerationResult{
			{TokensUsed: 1600, CostUSD: 0.0025, Err: "completion failed"},
		},
	}
	h := NewInsightHandler(&fakeInsightReader{}, gen, &fakePortfolioSource{portfolio: testPortfolio()}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/insights/0xaaa/generate",
		strings.NewReader(`{"types":["risk-exposure"]}`))
	rec := httptest.NewRecorder()
	insightMux(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "failed", body.Results[0].Status)
	assert.Equal(t, "completion failed", body.Results[0].Error)
	assert.Nil(t, body.Results[0].Insight)
	assert.Equal(t, 1600, body.Results[0].TokensUsed)
}

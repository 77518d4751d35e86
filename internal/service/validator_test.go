package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/domain"
)

func validInsight() *domain.Insight {
	return &domain.Insight{
		Title:            "Portfolio concentration in AVAX",
		Summary:          strings.Repeat("AVAX makes up a large share of this portfolio. ", 2),
		DetailedAnalysis: strings.Repeat("The wallet holds a significant AVAX allocation relative to its other assets. ", 3),
		Severity:         domain.SeverityMedium,
		Confidence:       0.8,
		Recommendations: []domain.Recommendation{
			{Action: "Review AVAX allocation", Description: "Consider trimming toward 25%", Priority: "medium"},
		},
		Tags: []string{"concentration", "avax"},
	}
}

func TestValidateInsightAccepts(t *testing.T) {
	res := ValidateInsight(validInsight())
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
}

func TestValidateInsightStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Insight)
		want   string
	}{
		{"empty title", func(i *domain.Insight) { i.Title = "" }, "title is empty"},
		{"long title", func(i *domain.Insight) { i.Title = strings.Repeat("x", 151) }, "title exceeds"},
		{"short summary", func(i *domain.Insight) { i.Summary = "too short" }, "summary length"},
		{"long summary", func(i *domain.Insight) { i.Summary = strings.Repeat("x", 501) }, "summary length"},
		{"short analysis", func(i *domain.Insight) { i.DetailedAnalysis = "brief" }, "analysis length"},
		{"bad severity", func(i *domain.Insight) { i.Severity = "urgent" }, "unrecognized severity"},
		{"confidence above one", func(i *domain.Insight) { i.Confidence = 1.2 }, "confidence"},
		{"no recommendations", func(i *domain.Insight) { i.Recommendations = nil }, "no recommendations"},
		{"bad priority", func(i *domain.Insight) { i.Recommendations[0].Priority = "urgent" }, "invalid priority"},
		{"missing action", func(i *domain.Insight) { i.Recommendations[0].Action = "" }, "no action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := validInsight()
			tt.mutate(ins)
			res := ValidateInsight(ins)
			require.False(t, res.Valid())
			assert.Contains(t, strings.Join(res.Errors, "; "), tt.want)
		})
	}
}

func TestValidateInsightContentSafety(t *testing.T) {
	ins := validInsight()
	ins.DetailedAnalysis = strings.Repeat("This allocation is guaranteed to outperform the market over time. ", 3)
	res := ValidateInsight(ins)
	require.False(t, res.Valid())
	assert.Contains(t, res.Errors[0], "definitive financial advice")

	ins = validInsight()
	ins.Summary = "Consider moving funds from Protocol XYZ into something with an audited track record now."
	res = ValidateInsight(ins)
	require.False(t, res.Valid())
	assert.Contains(t, res.Errors[0], "placeholder content")

	ins = validInsight()
	ins.DetailedAnalysis = strings.Repeat("Sudden TVL drops of this size sometimes precede a rug pull, so monitor withdrawals closely. ", 2)
	res = ValidateInsight(ins)
	require.False(t, res.Valid())
	assert.Contains(t, res.Errors[0], "inflammatory language")

	// Recommendations are scanned too, not just the prose fields.
	ins = validInsight()
	ins.Recommendations[0].Description = "Exit before this turns into a ponzi collapse"
	res = ValidateInsight(ins)
	require.False(t, res.Valid())
	assert.Contains(t, res.Errors[0], "inflammatory language")
}

func TestValidateInsightWarnings(t *testing.T) {
	ins := validInsight()
	ins.Confidence = 0.3
	ins.Tags = nil

	res := ValidateInsight(ins)
	assert.True(t, res.Valid(), "warnings alone do not invalidate")
	assert.Len(t, res.Warnings, 2)
}

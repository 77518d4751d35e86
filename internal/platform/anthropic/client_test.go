package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	tests := []struct {
		model  string
		in     int
		out    int
		want   float64
	}{
		{"claude-3-5-haiku-latest", 1_000_000, 0, 0.80},
		{"claude-3-5-haiku-latest", 0, 1_000_000, 4.00},
		{"claude-sonnet-4-20250514", 1_000_000, 1_000_000, 18.00},
		{"claude-opus-4-1", 100_000, 10_000, 2.25},
		{"unknown-model", 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cost(tt.model, tt.in, tt.out), 1e-9)
		})
	}
}

func TestPricingForUnknownModel(t *testing.T) {
	_, ok := pricingFor("unknown-model")
	assert.False(t, ok)

	_, ok = pricingFor("claude-sonnet-4-20250514")
	assert.True(t, ok)
}

func TestCostPrefersLongestPrefix(t *testing.T) {
	// claude-3-5-haiku must match its own rate, not the claude-haiku one.
	assert.InDelta(t, 0.80, Cost("claude-3-5-haiku-20241022", 1_000_000, 0), 1e-9)
	assert.InDelta(t, 1.00, Cost("claude-haiku-4-5", 1_000_000, 0), 1e-9)
}

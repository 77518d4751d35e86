package defillama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "trader-joe", Slugify("Trader Joe"))
	assert.Equal(t, "aave-v3", Slugify("  AAVE   V3  "))
	assert.Equal(t, "gmx", Slugify("GMX"))
	assert.Equal(t, "", Slugify("   "))
}

func TestProtocolFetchesAndMaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/protocol/trader-joe", r.URL.Path)
		fmt.Fprint(w, `{
			"name": "Trader Joe",
			"logo": "https://icons.example/joe.png",
			"category": "Dexes",
			"audits": "2",
			"chains": ["Avalanche", "Arbitrum", "BSC"],
			"tvl": [
				{"date": 1700000000, "totalLiquidityUSD": 90000000},
				{"date": 1700086400, "totalLiquidityUSD": 120000000}
			],
			"change_7d": -4.2
		}`)
	}))
	defer srv.Close()

	c := NewClient(config.DefiLlamaConfig{BaseURL: srv.URL}, config.RetryConfig{}, 0, nil, nil, newTestLogger())

	info := c.Protocol(context.Background(), "Trader Joe")
	require.NotNil(t, info)
	assert.Equal(t, "trader-joe", info.Slug)
	assert.Equal(t, 120000000.0, info.TVL, "latest TVL point wins")
	assert.Equal(t, -4.2, info.TVLChange7d)
	assert.True(t, info.Audited)
	assert.Len(t, info.Chains, 3)
}

func TestProtocolRetriesPerConfig(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"name": "GMX", "tvl": [{"date": 1700000000, "totalLiquidityUSD": 500000000}]}`)
	}))
	defer srv.Close()

	retry := config.RetryConfig{MaxRetries: 2, InitialDelayMs: 1, MaxDelayMs: 2, Multiplier: 2}
	c := NewClient(config.DefiLlamaConfig{BaseURL: srv.URL}, retry, 0, nil, nil, newTestLogger())

	info := c.Protocol(context.Background(), "GMX")
	require.NotNil(t, info, "transient 500 is retried away")
	assert.Equal(t, 2, calls)
}

func TestProtocolMissYieldsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.DefiLlamaConfig{BaseURL: srv.URL}, config.RetryConfig{}, 0, nil, nil, newTestLogger())
	assert.Nil(t, c.Protocol(context.Background(), "does not exist"))
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		name string
		info *domain.ProtocolInfo
		want string
	}{
		{
			name: "unknown protocol is high risk",
			info: nil,
			want: "high",
		},
		{
			name: "large audited multichain protocol is low risk",
			info: &domain.ProtocolInfo{
				TVL:     2_000_000_000,
				Audited: true,
				Chains:  []string{"Avalanche", "Ethereum", "Arbitrum"},
			},
			want: "low",
		},
		{
			name: "mid TVL unaudited protocol is medium risk",
			info: &domain.ProtocolInfo{
				TVL:    150_000_000,
				Chains: []string{"Avalanche"},
			},
			want: "medium",
		},
		{
			name: "tiny TVL with steep weekly drop is high risk",
			info: &domain.ProtocolInfo{
				TVL:         5_000_000,
				TVLChange7d: -35,
				Chains:      []string{"Avalanche"},
			},
			want: "high",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskLevel(tt.info))
		})
	}
}

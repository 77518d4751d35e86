package zerion

import (
	"context"
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

const positionsFixture = `{
  "data": [
    {
      "id": "pos-avax",
      "attributes": {
        "name": "Asset",
        "position_type": "wallet",
        "quantity": {"int": "1500000000000000000000", "decimals": 18, "float": 1500},
        "value": 45000,
        "price": 30,
        "changes": {"percent_1d": 2.4},
        "fungible_info": {
          "name": "Avalanche",
          "symbol": "AVAX",
          "implementations": [
            {"chain_id": "avalanche", "address": "", "decimals": 18}
          ]
        },
        "flags": {"displayable": true, "is_trash": false}
      },
      "relationships": {"chain": {"data": {"id": "avalanche"}}}
    },
    {
      "id": "pos-staked",
      "attributes": {
        "name": "Staked JOE",
        "position_type": "staked",
        "quantity": {"int": "100000000000000000000", "decimals": 18, "float": 100},
        "value": 250,
        "price": 2.5,
        "fungible_info": {
          "name": "JoeToken",
          "symbol": "JOE",
          "implementations": [
            {"chain_id": "avalanche", "address": "0x6E84A6216eA6dACC71eE8E6b0a5B7322EEbC0fDd", "decimals": 18}
          ]
        },
        "flags": {"displayable": true, "is_trash": false},
        "application_metadata": {"name": "Trader Joe"}
      },
      "relationships": {"chain": {"data": {"id": "avalanche"}}}
    },
    {
      "id": "pos-spam",
      "attributes": {
        "name": "Free Money",
        "position_type": "wallet",
        "quantity": {"int": "1", "decimals": 0, "float": 1},
        "fungible_info": {
          "name": "Spam",
          "symbol": "SPAM",
          "implementations": [{"chain_id": "avalanche", "address": "0xdead", "decimals": 0}]
        },
        "flags": {"displayable": true, "is_trash": true}
      },
      "relationships": {"chain": {"data": {"id": "avalanche"}}}
    },
    {
      "id": "pos-other-chain",
      "attributes": {
        "name": "Ether",
        "position_type": "wallet",
        "quantity": {"int": "1", "decimals": 18, "float": 1},
        "fungible_info": {
          "name": "Ether",
          "symbol": "ETH",
          "implementations": [{"chain_id": "ethereum", "address": "", "decimals": 18}]
        },
        "flags": {"displayable": true, "is_trash": false}
      },
      "relationships": {"chain": {"data": {"id": "ethereum"}}}
    },
    {
      "id": "pos-no-impl",
      "attributes": {
        "name": "Bridged",
        "position_type": "wallet",
        "quantity": {"int": "1", "decimals": 6, "float": 1},
        "fungible_info": {
          "name": "Bridged",
          "symbol": "BRG",
          "implementations": [{"chain_id": "polygon", "address": "0xabc", "decimals": 6}]
        },
        "flags": {"displayable": true, "is_trash": false}
      },
      "relationships": {"chain": {"data": {"id": "avalanche"}}}
    }
  ]
}`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func avaxChain() config.ChainConfig {
	return config.ChainConfig{ID: 43114, NativeSymbol: "AVAX"}
}

func TestPositionsFiltersAndMaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallets/0xabc/positions/", r.URL.Path)
		assert.Equal(t, "avalanche", r.URL.Query().Get("filter[chain_ids]"))
		w.Write([]byte(positionsFixture))
	}))
	defer srv.Close()

	c, err := NewClient(config.ZerionConfig{BaseURL: srv.URL}, avaxChain(), config.RetryConfig{}, 0, nil, nil, newTestLogger())
	require.NoError(t, err)

	positions := c.Positions(context.Background(), "0xabc")
	require.Len(t, positions, 2, "spam, cross-chain and no-implementation entries are dropped")

	avax := positions[0]
	assert.Equal(t, domain.PositionWallet, avax.Type)
	assert.Equal(t, domain.WalletProtocol, avax.Protocol)
	assert.Equal(t, domain.StandardNative, avax.Tokens[0].Token.Standard)
	assert.Equal(t, 1500.0, avax.Tokens[0].Balance)
	assert.Equal(t, 45000.0, avax.TotalValueUSD)
	assert.Equal(t, 2.4, avax.Tokens[0].Change24h)
	assert.Equal(t, int64(43114), avax.ChainID)

	staked := positions[1]
	assert.Equal(t, domain.PositionStaking, staked.Type)
	assert.Equal(t, "Trader Joe", staked.Protocol)
	assert.Equal(t, domain.StandardERC20, staked.Tokens[0].Token.Standard)
	assert.Equal(t, "0x6e84a6216ea6dacc71ee8e6b0a5b7322eebc0fdd", staked.Tokens[0].Token.Address,
		"token addresses are lowercased")
}

func TestPositionsReturnsEmptyOnProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(config.ZerionConfig{BaseURL: srv.URL}, avaxChain(), config.RetryConfig{}, 0, nil, nil, newTestLogger())
	require.NoError(t, err)

	assert.Empty(t, c.Positions(context.Background(), "0xabc"))
}

func TestPositionTypeMapping(t *testing.T) {
	cases := map[string]domain.PositionType{
		"wallet":         domain.PositionWallet,
		"liquidity-pool": domain.PositionLiquidity,
		"staked":         domain.PositionStaking,
		"deposit":        domain.PositionLending,
		"loan":           domain.PositionBorrowing,
		"locked":         domain.PositionVesting,
		"reward":         domain.PositionFarming,
		"some-new-kind":  domain.PositionWallet,
	}

	for raw, want := range cases {
		p := positionData{
			Attributes: positionAttributes{
				PositionType: raw,
				Quantity:     quantity{Float: 1},
				FungibleInfo: fungibleInfo{
					Symbol:          "X",
					Implementations: []implementation{{ChainID: "avalanche", Decimals: 18}},
				},
				Flags: positionFlags{Displayable: true},
			},
		}
		p.Relationships.Chain.Data.ID = "avalanche"

		pos, ok := p.toDomain(43114, "avalanche")
		require.True(t, ok, raw)
		assert.Equal(t, want, pos.Type, raw)
	}
}

func TestNewClientRejectsUnknownChain(t *testing.T) {
	_, err := NewClient(config.ZerionConfig{BaseURL: "http://x"}, config.ChainConfig{ID: 999999}, config.RetryConfig{}, 0, nil, nil, newTestLogger())
	require.Error(t, err)
}

package zerion

import (
	"strings"
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// positionsResponse mirrors the wallet positions payload.
type positionsResponse struct {
	Data []positionData `json:"data"`
}

type positionData struct {
	ID            string             `json:"id"`
	Attributes    positionAttributes `json:"attributes"`
	Relationships relationships      `json:"relationships"`
}

type positionAttributes struct {
	Name         string        `json:"name"`
	PositionType string        `json:"position_type"`
	Quantity     quantity      `json:"quantity"`
	Value        *float64      `json:"value"`
	Price        float64       `json:"price"`
	Changes      *changes      `json:"changes"`
	FungibleInfo fungibleInfo  `json:"fungible_info"`
	Flags        positionFlags `json:"flags"`
	Application  *appMetadata  `json:"application_metadata"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type quantity struct {
	Int      string  `json:"int"`
	Decimals int     `json:"decimals"`
	Float    float64 `json:"float"`
}

type changes struct {
	Absolute1d float64 `json:"absolute_1d"`
	Percent1d  float64 `json:"percent_1d"`
}

type fungibleInfo struct {
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	Icon            *icon            `json:"icon"`
	Implementations []implementation `json:"implementations"`
}

type implementation struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

type icon struct {
	URL string `json:"url"`
}

type positionFlags struct {
	Displayable bool `json:"displayable"`
	IsTrash     bool `json:"is_trash"`
}

type appMetadata struct {
	Name string `json:"name"`
	Icon *icon  `json:"icon"`
}

type relationships struct {
	Chain struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"chain"`
}

// positionTypes maps provider position types onto domain types. Unrecognized
// types fall back to plain wallet holdings rather than being dropped.
var positionTypes = map[string]domain.PositionType{
	"wallet":         domain.PositionWallet,
	"liquidity-pool": domain.PositionLiquidity,
	"staked":         domain.PositionStaking,
	"deposit":        domain.PositionLending,
	"loan":           domain.PositionBorrowing,
	"locked":         domain.PositionVesting,
	"reward":         domain.PositionFarming,
}

// toDomain converts one provider position to a domain position, or false when
// the entry must be skipped: hidden or spam-flagged positions, positions on
// other chains, and fungibles with no implementation on the target chain.
func (p positionData) toDomain(chainID int64, chainName string) (domain.Position, bool) {
	if !p.Attributes.Flags.Displayable || p.Attributes.Flags.IsTrash {
		return domain.Position{}, false
	}
	if p.Relationships.Chain.Data.ID != chainName {
		return domain.Position{}, false
	}

	impl, ok := implementationFor(p.Attributes.FungibleInfo.Implementations, chainName)
	if !ok {
		return domain.Position{}, false
	}

	posType, ok := positionTypes[strings.ToLower(p.Attributes.PositionType)]
	if !ok {
		posType = domain.PositionWallet
	}

	standard := domain.StandardERC20
	if impl.Address == "" {
		standard = domain.StandardNative
	}

	balance := domain.TokenBalance{
		Token: domain.Token{
			Address:  strings.ToLower(impl.Address),
			Symbol:   p.Attributes.FungibleInfo.Symbol,
			Name:     p.Attributes.FungibleInfo.Name,
			Decimals: impl.Decimals,
			ChainID:  chainID,
			Standard: standard,
		},
		RawBalance: p.Attributes.Quantity.Int,
		Balance:    p.Attributes.Quantity.Float,
		PriceUSD:   p.Attributes.Price,
	}
	if p.Attributes.FungibleInfo.Icon != nil {
		balance.Token.LogoURL = p.Attributes.FungibleInfo.Icon.URL
	}
	if p.Attributes.Value != nil {
		balance.ValueUSD = *p.Attributes.Value
	} else {
		balance.ValueUSD = balance.Balance * balance.PriceUSD
	}
	if p.Attributes.Changes != nil {
		balance.Change24h = p.Attributes.Changes.Percent1d
	}

	pos := domain.Position{
		ID:       p.ID,
		Type:     posType,
		Protocol: domain.WalletProtocol,
		Name:     p.Attributes.Name,
		ChainID:  chainID,
		Tokens:   []domain.TokenBalance{balance},

		TotalValueUSD: balance.ValueUSD,
		UpdatedAt:     p.Attributes.UpdatedAt,
	}
	if p.Attributes.Application != nil && p.Attributes.Application.Name != "" {
		pos.Protocol = p.Attributes.Application.Name
		if p.Attributes.Application.Icon != nil {
			pos.ProtocolLogoURL = p.Attributes.Application.Icon.URL
		}
	}
	return pos, true
}

func implementationFor(impls []implementation, chainName string) (implementation, bool) {
	for _, impl := range impls {
		if impl.ChainID == chainName {
			return impl, true
		}
	}
	return implementation{}, false
}

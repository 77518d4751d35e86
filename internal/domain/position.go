package domain

import "time"

// PositionType classifies a DeFi exposure.
type PositionType string

const (
	PositionWallet    PositionType = "wallet"
	PositionLiquidity PositionType = "liquidity-pool"
	PositionStaking   PositionType = "staking"
	PositionLending   PositionType = "lending"
	PositionBorrowing PositionType = "borrowing"
	PositionFarming   PositionType = "farming"
	PositionVesting   PositionType = "vesting"
)

// WalletProtocol is the synthetic protocol name assigned to plain wallet
// holdings. It is excluded from protocol counts and protocol enrichment.
const WalletProtocol = "Wallet"

// Position is a single exposure: a plain wallet holding or a DeFi position
// (LP, staking, lending, ...). TotalValueUSD is the sum of its token balance
// values and must be recomputed after any repricing.
type Position struct {
	ID              string
	Type            PositionType
	Protocol        string
	ProtocolLogoURL string
	Name            string
	ChainID         int64
	Tokens          []TokenBalance
	TotalValueUSD   float64
	APR             float64
	APY             float64
	PoolShare       float64
	UpdatedAt       time.Time
}

// RecomputeTotal recalculates TotalValueUSD from the token balances.
func (p *Position) RecomputeTotal() {
	var total float64
	for i := range p.Tokens {
		total += p.Tokens[i].ValueUSD
	}
	p.TotalValueUSD = total
}

// IsDeFi reports whether the position represents protocol exposure rather
// than a plain wallet holding.
func (p Position) IsDeFi() bool {
	return p.Type != PositionWallet && p.Protocol != WalletProtocol
}

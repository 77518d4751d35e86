package domain

import "time"

// TokenStandard identifies the contract standard of a token.
type TokenStandard string

const (
	StandardERC20   TokenStandard = "ERC20"
	StandardERC721  TokenStandard = "ERC721"
	StandardERC1155 TokenStandard = "ERC1155"
	StandardNative  TokenStandard = "NATIVE"
)

// Token describes a fungible asset on the configured chain. Tokens are
// immutable once constructed; Address+ChainID is the natural key.
type Token struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
	ChainID  int64
	Standard TokenStandard
	LogoURL  string
}

// Key returns the address+chain identity used for deduplication. Addresses
// are compared case-insensitively, so the key is always lowercased.
func (t Token) Key() string {
	return lowerASCII(t.Address) + "/" + formatChainID(t.ChainID)
}

// TokenBalance is a holding of a single token, either standalone in the
// wallet or inside a DeFi position. RawBalance carries the integer amount as
// a string to avoid float precision loss; Balance is the human-readable
// amount. ValueUSD must always equal Balance * PriceUSD after any repricing.
type TokenBalance struct {
	Token      Token
	RawBalance string
	Balance    float64
	PriceUSD   float64
	ValueUSD   float64

	// Change24h is the 24h price change in percent, when the price source
	// provided one. Zero otherwise.
	Change24h float64
}

// Reprice applies a fresh unit price and recomputes ValueUSD.
func (b *TokenBalance) Reprice(p TokenPrice) {
	b.PriceUSD = p.PriceUSD
	b.Change24h = p.Change24h
	b.ValueUSD = b.Balance * p.PriceUSD
}

// TokenPrice is a point-in-time USD quote for a token.
type TokenPrice struct {
	Address   string
	Symbol    string
	PriceUSD  float64
	Change24h float64
	Change7d  float64
	MarketCap float64
	Volume24h float64
	UpdatedAt time.Time
}

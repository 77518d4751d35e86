// Package avalanche wraps the C-Chain JSON-RPC endpoint for address checks
// and native balance lookups.
package avalanche

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/domain"
)

var weiPerNative = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// ValidAddress reports whether s is a well-formed EVM address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress validates s and returns its EIP-55 checksummed form.
func NormalizeAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("avalanche: %w: %q", domain.ErrInvalidAddress, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// Client queries the chain directly. It backs the health endpoint and the
// native-balance cross-check; portfolio data itself comes from the position
// source.
type Client struct {
	eth          *ethclient.Client
	chainID      int64
	nativeSymbol string
	log          *slog.Logger
}

// Dial connects to the configured RPC endpoint and verifies the remote chain
// ID matches the configuration.
func Dial(ctx context.Context, cfg config.ChainConfig, log *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("avalanche: dial %s: %w", cfg.RPCURL, err)
	}

	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("avalanche: chain id: %w", err)
	}
	if remote.Int64() != cfg.ID {
		eth.Close()
		return nil, fmt.Errorf("avalanche: endpoint serves chain %d, expected %d", remote.Int64(), cfg.ID)
	}

	return &Client{
		eth:          eth,
		chainID:      cfg.ID,
		nativeSymbol: cfg.NativeSymbol,
		log:          log.With(slog.String("component", "avalanche")),
	}, nil
}

// NativeBalance returns the wallet's native token balance in whole units.
func (c *Client) NativeBalance(ctx context.Context, address string) (float64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("avalanche: %w: %q", domain.ErrInvalidAddress, address)
	}

	wei, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, fmt.Errorf("avalanche: balance of %s: %w", address, err)
	}

	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerNative).Float64()
	return f, nil
}

// BlockNumber returns the current head height, used by the health endpoint as
// a liveness signal for the RPC dependency.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("avalanche: block number: %w", err)
	}
	return n, nil
}

// NativeSymbol returns the configured native token symbol.
func (c *Client) NativeSymbol() string { return c.nativeSymbol }

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

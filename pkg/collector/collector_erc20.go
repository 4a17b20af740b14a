package collector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

// BaseResult holds the balances of one asset
type BaseResult struct {
	Asset *faucet.Asset
	// Vault is the balance recorded by the faucet
	Vault *big.Int
	// Custody is the token balance of the custody account
	Custody *big.Int
	Health  float64
}

// Drift returns custody minus vault in base units.
func (r *BaseResult) Drift() *big.Int {
	if r.Vault == nil || r.Custody == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(r.Custody, r.Vault)
}

func (r *BaseResult) VaultFloat() float64 {
	return r.Asset.Unit().Float(r.Vault)
}

func (r *BaseResult) CustodyFloat() float64 {
	return r.Asset.Unit().Float(r.Custody)
}

func (r *BaseResult) DriftFloat() float64 {
	return r.Asset.Unit().Float(r.Drift())
}

// VaultSource is the faucet state read by the collector.
type VaultSource interface {
	Balance(selector string) (*big.Int, error)
	Custody() common.Address
}

// ERC20Collector reads the vault balance from the faucet and the custody balance from
// the token contract.
type ERC20Collector struct {
	source VaultSource
}

func NewERC20Collector(source VaultSource) *ERC20Collector {
	return &ERC20Collector{source: source}
}

// NewVaultCollector builds the scrape-time collector for every asset of f.
func NewVaultCollector(f *faucet.Faucet, opts ...CollectorOption) *BaseCollector {
	return NewBaseCollector(f.Assets(), NewERC20Collector(f), opts...)
}

func (ec *ERC20Collector) CollectAssetBalance(ctx context.Context, asset *faucet.Asset) (*BaseResult, error) {
	vault, err := ec.source.Balance(asset.Address().Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to read vault balance of %s: %w", asset.Symbol, err)
	}

	custody, err := asset.Token.BalanceOf(ctx, ec.source.Custody())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch custody balance of %s: %w", asset.Symbol, err)
	}

	logger.Debugf("%s balances: vault %s, custody %s", asset.Symbol,
		asset.Unit().Format(vault), asset.Unit().Format(custody))

	return &BaseResult{
		Asset:   asset,
		Vault:   vault,
		Custody: custody,
		Health:  1.0,
	}, nil
}

package erc20

import (
	"context"
	"fmt"
	"strings"

	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/currency"
)

// MetadataReader reads the metadata of a token contract.
type MetadataReader interface {
	Metadata(ctx context.Context) (*Metadata, error)
}

// ResolveUnits settles the symbol and decimals of asset, reading them from the contract
// when auto discovery is enabled, and registers the display unit. Configured values win
// over discovered ones, except that conflicting decimals are an error.
func ResolveUnits(ctx context.Context, registry *currency.Registry, reader MetadataReader, asset *config.Asset) (*currency.Unit, error) {
	if asset == nil {
		return nil, fmt.Errorf("asset configuration cannot be nil")
	}

	if asset.AutoUnitDiscovery {
		if reader == nil {
			return nil, fmt.Errorf("asset %s needs a metadata reader for unit discovery", asset.ContractAddress)
		}
		meta, err := reader.Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch token metadata for %s: %w", asset.ContractAddress, err)
		}
		if asset.Symbol == "" {
			asset.Symbol = strings.TrimSpace(meta.Symbol)
		}
		if asset.Decimals == nil {
			decimals := meta.Decimals
			asset.Decimals = &decimals
		} else if *asset.Decimals != meta.Decimals {
			return nil, fmt.Errorf("asset %s is configured with %d decimals but the contract reports %d",
				asset.Symbol, *asset.Decimals, meta.Decimals)
		}
	}

	if asset.Symbol == "" || asset.Decimals == nil {
		return nil, fmt.Errorf("asset %s missing unit definitions and auto discovery disabled", asset.ContractAddress)
	}

	unit, err := registry.Ensure(asset.Symbol, *asset.Decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to register unit for asset %s: %w", asset.Symbol, err)
	}
	return unit, nil
}

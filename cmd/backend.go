package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/currency"
	"github.com/zama-ai/token-faucet/pkg/erc20"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/token"
)

// chainBackend holds the faucet assets built for the configured chain
type chainBackend struct {
	custody common.Address
	assets  []*faucet.Asset
	close   func()
}

func newChainBackend(ctx context.Context, cfg *config.Schema, registry *currency.Registry) (*chainBackend, error) {
	switch cfg.Chain.Backend {
	case config.BackendMemory:
		return newMemoryBackend(ctx, cfg, registry)
	case config.BackendEVM:
		return newEVMBackend(ctx, cfg, registry)
	default:
		return nil, fmt.Errorf("unsupported chain backend: %s", cfg.Chain.Backend)
	}
}

// newMemoryBackend builds in-process tokens and applies the configured seed balances.
func newMemoryBackend(ctx context.Context, cfg *config.Schema, registry *currency.Registry) (*chainBackend, error) {
	backend := &chainBackend{
		custody: common.HexToAddress(cfg.Chain.Custody),
		close:   func() {},
	}

	tokens := make(map[string]*token.Memory, len(cfg.Faucet.Assets))
	for _, assetCfg := range cfg.Faucet.Assets {
		unit, err := erc20.ResolveUnits(ctx, registry, nil, assetCfg)
		if err != nil {
			return nil, err
		}
		tk := token.NewMemory(common.HexToAddress(assetCfg.ContractAddress), assetCfg.Symbol, unit.Decimals)
		asset, err := newAsset(assetCfg, unit, tk.As(backend.custody))
		if err != nil {
			return nil, err
		}
		tokens[strings.ToUpper(assetCfg.Symbol)] = tk
		backend.assets = append(backend.assets, asset)
	}

	for _, seed := range cfg.Chain.Seed {
		tk, ok := tokens[strings.ToUpper(strings.TrimSpace(seed.Asset))]
		if !ok {
			return nil, fmt.Errorf("seed references unknown asset %s", seed.Asset)
		}
		account := common.HexToAddress(seed.Account)
		if seed.Balance != "" {
			balance, err := seed.Balance.Base(tk.Decimals())
			if err != nil {
				return nil, fmt.Errorf("invalid seed balance for %s: %w", seed.Account, err)
			}
			tk.Mint(account, balance)
		}
		if seed.Allowance != "" {
			allowance, err := seed.Allowance.Base(tk.Decimals())
			if err != nil {
				return nil, fmt.Errorf("invalid seed allowance for %s: %w", seed.Account, err)
			}
			tk.Approve(account, backend.custody, allowance)
		}
		logger.Infof("[memory %s] seeded %s with balance %s, allowance %s", tk.Symbol(), account.Hex(), seed.Balance, seed.Allowance)
	}
	return backend, nil
}

// newEVMBackend connects to the node and binds every asset to its ERC20 contract.
func newEVMBackend(ctx context.Context, cfg *config.Schema, registry *currency.Registry) (*chainBackend, error) {
	rpc, err := erc20.Dial(ctx, &cfg.Chain)
	if err != nil {
		return nil, err
	}
	if rpc.Signer() == nil {
		rpc.Close()
		return nil, fmt.Errorf("evm backend needs the custody private key")
	}
	backend := &chainBackend{
		custody: rpc.Signer().Address(),
		close:   rpc.Close,
	}

	for _, assetCfg := range cfg.Faucet.Assets {
		client := rpc.Token(common.HexToAddress(assetCfg.ContractAddress))
		unit, err := erc20.ResolveUnits(ctx, registry, client, assetCfg)
		if err != nil {
			rpc.Close()
			return nil, err
		}
		asset, err := newAsset(assetCfg, unit, client)
		if err != nil {
			rpc.Close()
			return nil, err
		}
		logger.Infof("Loaded ERC20 metadata for asset %s (address=%s, decimals=%d)", asset.Symbol, client.Address().Hex(), unit.Decimals)
		backend.assets = append(backend.assets, asset)
	}
	return backend, nil
}

func newAsset(assetCfg *config.Asset, unit *currency.Unit, tk token.Token) (*faucet.Asset, error) {
	claim, err := assetCfg.ClaimAmount.Base(unit.Decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid claim amount for %s: %w", assetCfg.Symbol, err)
	}
	return &faucet.Asset{
		Symbol:      assetCfg.Symbol,
		Decimals:    unit.Decimals,
		ClaimAmount: claim,
		Token:       tk,
	}, nil
}

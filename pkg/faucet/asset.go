package faucet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/currency"
	"github.com/zama-ai/token-faucet/pkg/token"
)

// Asset is a fungible token distributed by the faucet.
type Asset struct {
	Symbol   string
	Decimals uint8
	// ClaimAmount is the fixed allotment of one claim, in the smallest unit
	ClaimAmount *big.Int
	Token       token.Token
}

// Address returns the token contract address, which identifies the asset.
func (a *Asset) Address() common.Address {
	return a.Token.Address()
}

// Unit returns the display unit of the asset.
func (a *Asset) Unit() *currency.Unit {
	return &currency.Unit{Name: strings.ToUpper(a.Symbol), Symbol: a.Symbol, Decimals: a.Decimals}
}

func (a *Asset) String() string {
	return fmt.Sprintf("%s(%s)", a.Symbol, a.Address().Hex())
}

// assetSet is the immutable set of configured assets.
type assetSet struct {
	ordered   []*Asset
	bySymbol  map[string]*Asset
	byAddress map[common.Address]*Asset
}

func newAssetSet(assets []*Asset) (*assetSet, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("at least one asset must be configured")
	}
	set := &assetSet{
		bySymbol:  make(map[string]*Asset, len(assets)),
		byAddress: make(map[common.Address]*Asset, len(assets)),
	}
	for _, a := range assets {
		if a == nil || a.Token == nil {
			return nil, fmt.Errorf("asset is missing its token")
		}
		if a.Symbol == "" {
			return nil, fmt.Errorf("asset %s is missing a symbol", a.Address().Hex())
		}
		if a.ClaimAmount == nil || a.ClaimAmount.Sign() <= 0 {
			return nil, fmt.Errorf("asset %s needs a positive claim amount", a.Symbol)
		}
		symbol := strings.ToUpper(a.Symbol)
		if _, dup := set.bySymbol[symbol]; dup {
			return nil, fmt.Errorf("duplicate asset symbol %s", a.Symbol)
		}
		if _, dup := set.byAddress[a.Address()]; dup {
			return nil, fmt.Errorf("duplicate asset address %s", a.Address().Hex())
		}
		set.bySymbol[symbol] = a
		set.byAddress[a.Address()] = a
		set.ordered = append(set.ordered, a)
	}
	return set, nil
}

// resolve finds an asset by symbol (case-insensitive) or by hex token address.
func (s *assetSet) resolve(selector string) (*Asset, error) {
	selector = strings.TrimSpace(selector)
	if a, ok := s.bySymbol[strings.ToUpper(selector)]; ok {
		return a, nil
	}
	if common.IsHexAddress(selector) {
		if a, ok := s.byAddress[common.HexToAddress(selector)]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidAsset, selector)
}

package validation

import (
	"fmt"
	"strings"

	"github.com/zama-ai/token-faucet/pkg/config"
)

// MemoryValidator checks the in-process development chain
type MemoryValidator struct {
	BaseValidator
}

func NewMemoryValidator() *MemoryValidator {
	return &MemoryValidator{}
}

func (v *MemoryValidator) ValidateChain(chain *config.Chain, assets []*config.Asset) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.ValidateAddress("chain.custodyAddress", chain.Custody)...)

	known := make(map[string]bool, len(assets))
	for i, asset := range assets {
		if asset.AutoUnitDiscovery {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("faucet.assets[%d].autoUnitDiscovery", i),
				Message: "unit discovery needs the evm backend",
			})
		}
		known[strings.ToUpper(asset.Symbol)] = true
	}

	for i, seed := range chain.Seed {
		field := fmt.Sprintf("chain.seed[%d]", i)
		errors = append(errors, v.ValidateAddress(field+".account", seed.Account)...)
		if !known[strings.ToUpper(seed.Asset)] {
			errors = append(errors, ValidationError{
				Field:   field + ".asset",
				Message: fmt.Sprintf("unknown asset %q", seed.Asset),
			})
		}
		if seed.Balance == "" && seed.Allowance == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "balance or allowance must be set",
			})
		}
	}

	return errors
}

package validation

import (
	"fmt"

	"github.com/zama-ai/token-faucet/pkg/config"
)

// AssetValidator checks the ERC20 assets served by the faucet
type AssetValidator struct {
	BaseValidator
}

func NewAssetValidator() *AssetValidator {
	return &AssetValidator{}
}

func (v *AssetValidator) ValidateAsset(index int, asset *config.Asset) ValidationErrors {
	var errors ValidationErrors
	field := fmt.Sprintf("faucet.assets[%d]", index)

	if asset.Symbol == "" && !asset.AutoUnitDiscovery {
		errors = append(errors, ValidationError{
			Field:   field + ".symbol",
			Message: "symbol is required when autoUnitDiscovery is disabled",
		})
	}
	if asset.Decimals == nil && !asset.AutoUnitDiscovery {
		errors = append(errors, ValidationError{
			Field:   field + ".decimals",
			Message: "decimals is required when autoUnitDiscovery is disabled",
		})
	}

	if asset.ClaimAmount == "" {
		errors = append(errors, ValidationError{
			Field:   field + ".claimAmount",
			Message: "claimAmount cannot be empty",
		})
	} else if asset.Decimals != nil {
		amount, err := asset.ClaimAmount.Base(*asset.Decimals)
		switch {
		case err != nil:
			errors = append(errors, ValidationError{
				Field:   field + ".claimAmount",
				Message: err.Error(),
			})
		case amount.Sign() == 0:
			errors = append(errors, ValidationError{
				Field:   field + ".claimAmount",
				Message: "claimAmount must be positive",
			})
		}
	}

	errors = append(errors, v.ValidateAddress(field+".contractAddress", asset.ContractAddress)...)

	return errors
}

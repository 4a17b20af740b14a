package validation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BaseValidator provides the address checks shared by every section
type BaseValidator struct{}

// ValidateAddress checks that value is a hex address in checksum format.
func (v *BaseValidator) ValidateAddress(field, value string) ValidationErrors {
	var errors ValidationErrors

	if value == "" {
		errors = append(errors, ValidationError{
			Field:   field,
			Message: "address cannot be empty",
		})
		return errors
	}

	if !common.IsHexAddress(value) {
		errors = append(errors, ValidationError{
			Field:   field,
			Message: "invalid Ethereum address format",
		})
		return errors
	}

	address := common.HexToAddress(value)
	if address == (common.Address{}) {
		errors = append(errors, ValidationError{
			Field:   field,
			Message: "address cannot be the zero address",
		})
		return errors
	}

	if checksum := address.Hex(); value != checksum {
		errors = append(errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("address should be in checksum format: %s", checksum),
		})
	}

	return errors
}

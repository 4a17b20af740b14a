package validation

import (
	"net/url"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zama-ai/token-faucet/pkg/config"
)

// EthereumValidator checks the settings of the on-chain ERC20 backend
type EthereumValidator struct {
	BaseValidator
}

func NewEthereumValidator() *EthereumValidator {
	return &EthereumValidator{}
}

func (v *EthereumValidator) ValidateChain(chain *config.Chain, _ []*config.Asset) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.validateHTTPAddress(chain)...)
	errors = append(errors, v.validateSigner(chain)...)

	if chain.ChainID <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chain.chainId",
			Message: "chain ID must be positive",
		})
	}
	if chain.ReceiptTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chain.receiptTimeout",
			Message: "receipt timeout must be positive",
		})
	}
	if len(chain.Seed) > 0 {
		errors = append(errors, ValidationError{
			Field:   "chain.seed",
			Message: "seeding is only supported by the memory backend",
		})
	}

	return errors
}

func (v *EthereumValidator) validateHTTPAddress(chain *config.Chain) ValidationErrors {
	var errors ValidationErrors

	if chain.HttpAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "chain.httpAddr",
			Message: "HTTP address cannot be empty",
		})
		return errors
	}

	parsedURL, err := url.Parse(chain.HttpAddr)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "chain.httpAddr",
			Message: "invalid HTTP address URL",
		})
		return errors
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, ValidationError{
			Field:   "chain.httpAddr",
			Message: "URL scheme must be either http or https",
		})
	}

	if parsedURL.Scheme == "https" {
		if chain.HttpSSLVerify == "" {
			errors = append(errors, ValidationError{
				Field:   "chain.httpSSLVerify",
				Message: "SSL verification setting must be specified for HTTPS connections",
			})
		} else if chain.HttpSSLVerify != "true" && chain.HttpSSLVerify != "false" {
			errors = append(errors, ValidationError{
				Field:   "chain.httpSSLVerify",
				Message: "SSL verification must be either 'true' or 'false'",
			})
		}
	}

	return errors
}

// validateSigner checks that the custody key is present and matches the custody address.
func (v *EthereumValidator) validateSigner(chain *config.Chain) ValidationErrors {
	errors := v.ValidateAddress("chain.custodyAddress", chain.Custody)

	if chain.PrivateKey == "" {
		errors = append(errors, ValidationError{
			Field:   "chain.privateKeyEnv",
			Message: "the custody private key must be provided through privateKeyEnv",
		})
		return errors
	}

	key, err := crypto.HexToECDSA(strip0x(chain.PrivateKey))
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "chain.privateKeyEnv",
			Message: "invalid custody private key",
		})
		return errors
	}
	if len(errors) == 0 && crypto.PubkeyToAddress(key.PublicKey).Hex() != chain.Custody {
		errors = append(errors, ValidationError{
			Field:   "chain.custodyAddress",
			Message: "does not match the custody private key",
		})
	}

	return errors
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

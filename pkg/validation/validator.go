package validation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

var (
	mapValidators = map[string]ChainValidator{
		config.BackendMemory: NewMemoryValidator(),
		config.BackendEVM:    NewEthereumValidator(),
	}

	// scheduleParser accepts the same expressions as the reconciler's cron
	scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ValidationError represents a validation error with a specific field and message
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var errMsgs []string
	for _, err := range e {
		errMsgs = append(errMsgs, err.Error())
	}
	return strings.Join(errMsgs, "; ")
}

// ChainValidator defines the interface for backend-specific chain validators
type ChainValidator interface {
	ValidateChain(chain *config.Chain, assets []*config.Asset) ValidationErrors
}

// ConfigValidator handles validation of the entire configuration
type ConfigValidator struct {
	BaseValidator
	validators map[string]ChainValidator
	assets     *AssetValidator
}

// NewConfigValidator creates a new ConfigValidator with registered chain validators
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		validators: mapValidators,
		assets:     NewAssetValidator(),
	}
}

// ValidateConfig validates the entire configuration schema
func (v *ConfigValidator) ValidateConfig(cfg *config.Schema) error {
	var allErrors ValidationErrors

	allErrors = append(allErrors, v.validateGlobal(&cfg.Global)...)
	allErrors = append(allErrors, v.validateFaucet(&cfg.Faucet, cfg.Chain.Custody)...)
	allErrors = append(allErrors, v.validateStore(&cfg.Store)...)
	allErrors = append(allErrors, v.validateReconcile(cfg.Reconcile)...)

	validator, exists := v.validators[cfg.Chain.Backend]
	if !exists {
		allErrors = append(allErrors, ValidationError{
			Field:   "chain.backend",
			Message: fmt.Sprintf("unsupported chain backend: %s", cfg.Chain.Backend),
		})
	} else {
		allErrors = append(allErrors, validator.ValidateChain(&cfg.Chain, cfg.Faucet.Assets)...)
	}

	if len(allErrors) > 0 {
		return allErrors
	}
	return nil
}

// validateGlobal validates the global configuration
func (v *ConfigValidator) validateGlobal(global *config.Global) ValidationErrors {
	var errors ValidationErrors
	logger.Infof("validating global config: %+v", *global)

	if global.ListenAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "global.listenAddr",
			Message: "cannot be empty",
		})
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(global.LogLevel)] {
		errors = append(errors, ValidationError{
			Field:   "global.logLevel",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	return errors
}

// validateFaucet checks the faucet section. The operator must be an identity of its
// own: custody signs no requests and cannot deposit to itself.
func (v *ConfigValidator) validateFaucet(f *config.Faucet, custody string) ValidationErrors {
	var errors ValidationErrors

	operatorErrors := v.ValidateAddress("faucet.operator", f.Operator)
	errors = append(errors, operatorErrors...)
	if len(operatorErrors) == 0 && common.IsHexAddress(custody) && common.HexToAddress(f.Operator) == common.HexToAddress(custody) {
		errors = append(errors, ValidationError{
			Field:   "faucet.operator",
			Message: "must differ from chain.custodyAddress",
		})
	}

	if _, err := faucet.ParsePolicy(f.Policy.Mode, f.Policy.Cooldown); err != nil {
		errors = append(errors, ValidationError{
			Field:   "faucet.policy.mode",
			Message: err.Error(),
		})
	}
	if _, err := faucet.ParseScope(f.Policy.Scope); err != nil {
		errors = append(errors, ValidationError{
			Field:   "faucet.policy.scope",
			Message: err.Error(),
		})
	}
	if f.Auth.MaxRequestAge < 0 {
		errors = append(errors, ValidationError{
			Field:   "faucet.auth.maxRequestAge",
			Message: "must be positive",
		})
	}
	if f.EventLogSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "faucet.eventLogSize",
			Message: "cannot be negative",
		})
	}

	if len(f.Assets) == 0 {
		errors = append(errors, ValidationError{
			Field:   "faucet.assets",
			Message: "at least one asset must be specified",
		})
	}
	symbols := make(map[string]bool, len(f.Assets))
	for i, asset := range f.Assets {
		errors = append(errors, v.assets.ValidateAsset(i, asset)...)
		symbol := strings.ToUpper(asset.Symbol)
		if symbol == "" {
			continue
		}
		if symbols[symbol] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("faucet.assets[%d].symbol", i),
				Message: fmt.Sprintf("duplicate asset symbol %s", asset.Symbol),
			})
		}
		symbols[symbol] = true
	}

	return errors
}

func (v *ConfigValidator) validateStore(s *config.Store) ValidationErrors {
	var errors ValidationErrors

	switch s.Type {
	case config.StoreMemory:
	case config.StorePebble:
		if s.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "store.path",
				Message: "path is required for the pebble store",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.type",
			Message: fmt.Sprintf("must be one of: %s, %s", config.StoreMemory, config.StorePebble),
		})
	}

	return errors
}

func (v *ConfigValidator) validateReconcile(r *config.Reconcile) ValidationErrors {
	var errors ValidationErrors

	if r == nil || !r.Enabled {
		return errors
	}
	if _, err := scheduleParser.Parse(r.Schedule); err != nil {
		errors = append(errors, ValidationError{
			Field:   "reconcile.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	return errors
}

package faucet

import (
	"fmt"
	"math"
	"time"
)

// Forever is reported as the wait time when a caller can never claim again without an
// operator revoking the record.
const Forever = time.Duration(math.MaxInt64)

// DefaultCooldown is the cooldown used when none is configured.
const DefaultCooldown = 24 * time.Hour

// EligibilityPolicy decides from a caller's claim record whether a new claim is allowed.
// claimed is false when no record exists, in which case last is the zero time.
type EligibilityPolicy interface {
	Name() string
	// Wait returns how long the caller must wait before claiming again; zero means
	// eligible now.
	Wait(last time.Time, claimed bool, now time.Time) time.Duration
}

// OneShot allows a single claim per record, until an operator revokes it.
type OneShot struct{}

func (OneShot) Name() string { return "oneshot" }

func (OneShot) Wait(_ time.Time, claimed bool, _ time.Time) time.Duration {
	if claimed {
		return Forever
	}
	return 0
}

// Cooldown allows a new claim once Period has elapsed since the last one.
type Cooldown struct {
	Period time.Duration
}

func (c Cooldown) Name() string { return fmt.Sprintf("cooldown(%s)", c.Period) }

func (c Cooldown) Wait(last time.Time, claimed bool, now time.Time) time.Duration {
	if !claimed {
		return 0
	}
	next := last.Add(c.Period)
	if !now.Before(next) {
		return 0
	}
	return next.Sub(now)
}

// Scope selects how claim records are keyed.
type Scope string

const (
	// ScopeAsset keeps one record per (caller, asset).
	ScopeAsset Scope = "asset"
	// ScopeGlobal keeps one record per caller, shared by every asset.
	ScopeGlobal Scope = "global"
)

// ParsePolicy builds a policy from its configuration name.
func ParsePolicy(mode string, cooldown time.Duration) (EligibilityPolicy, error) {
	switch mode {
	case "", "oneshot":
		return OneShot{}, nil
	case "cooldown":
		if cooldown == 0 {
			cooldown = DefaultCooldown
		}
		if cooldown < 0 {
			return nil, fmt.Errorf("cooldown must be positive, got %s", cooldown)
		}
		return Cooldown{Period: cooldown}, nil
	default:
		return nil, fmt.Errorf("unsupported eligibility policy %q", mode)
	}
}

// ParseScope validates a scope name, defaulting to ScopeAsset.
func ParseScope(scope string) (Scope, error) {
	switch Scope(scope) {
	case "", ScopeAsset:
		return ScopeAsset, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("unsupported eligibility scope %q", scope)
	}
}

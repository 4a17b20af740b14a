package faucet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/store"
)

var claimPrefix = []byte("c/")

// Ledger records which callers claimed which assets and when.
type Ledger struct {
	policy EligibilityPolicy
	scope  Scope
}

func NewLedger(policy EligibilityPolicy, scope Scope) *Ledger {
	if policy == nil {
		policy = OneShot{}
	}
	if scope == "" {
		scope = ScopeAsset
	}
	return &Ledger{policy: policy, scope: scope}
}

func (l *Ledger) Policy() EligibilityPolicy { return l.policy }

func (l *Ledger) Scope() Scope { return l.scope }

// IsEligible reports whether caller may claim asset at now.
func (l *Ledger) IsEligible(r store.Reader, caller, asset common.Address, now time.Time) (bool, error) {
	wait, err := l.TimeUntilNext(r, caller, asset, now)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// TimeUntilNext returns how long caller must wait before claiming asset. Forever means
// only a revoke re-enables the caller.
func (l *Ledger) TimeUntilNext(r store.Reader, caller, asset common.Address, now time.Time) (time.Duration, error) {
	last, claimed, err := l.lastClaim(r, caller, asset)
	if err != nil {
		return 0, err
	}
	return l.policy.Wait(last, claimed, now), nil
}

// HasReceived reports whether a claim record exists for the pair.
func (l *Ledger) HasReceived(r store.Reader, caller, asset common.Address) (bool, error) {
	_, claimed, err := l.lastClaim(r, caller, asset)
	return claimed, err
}

// LastClaim returns the time of the recorded claim, if any.
func (l *Ledger) LastClaim(r store.Reader, caller, asset common.Address) (time.Time, bool, error) {
	return l.lastClaim(r, caller, asset)
}

// Record stores a claim by caller of asset at now.
func (l *Ledger) Record(tx store.WriteTx, caller, asset common.Address, now time.Time) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(now.UnixNano()))
	if err := tx.Set(l.key(caller, asset), value); err != nil {
		return fmt.Errorf("failed to record claim of %s by %s: %w", asset.Hex(), caller.Hex(), err)
	}
	return nil
}

// Revoke clears the record of the pair so that caller may claim again.
func (l *Ledger) Revoke(tx store.WriteTx, caller, asset common.Address) error {
	if err := tx.Delete(l.key(caller, asset)); err != nil {
		return fmt.Errorf("failed to revoke claim of %s by %s: %w", asset.Hex(), caller.Hex(), err)
	}
	return nil
}

func (l *Ledger) lastClaim(r store.Reader, caller, asset common.Address) (time.Time, bool, error) {
	value, err := r.Get(l.key(caller, asset))
	if errors.Is(err, store.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read claim of %s by %s: %w", asset.Hex(), caller.Hex(), err)
	}
	if len(value) != 8 {
		return time.Time{}, false, fmt.Errorf("corrupt claim record of %s by %s", asset.Hex(), caller.Hex())
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(value))), true, nil
}

func (l *Ledger) key(caller, asset common.Address) []byte {
	if l.scope == ScopeGlobal {
		asset = common.Address{}
	}
	key := make([]byte, 0, len(claimPrefix)+2*common.AddressLength)
	key = append(key, claimPrefix...)
	key = append(key, caller.Bytes()...)
	return append(key, asset.Bytes()...)
}

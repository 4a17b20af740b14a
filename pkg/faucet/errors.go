package faucet

import (
	"errors"
)

var (
	// ErrNotEligible is returned when the caller already claimed the asset, or is still
	// inside the cooldown window.
	ErrNotEligible = errors.New("not eligible")
	// ErrInsufficientFunds is returned when the vault holds less than the requested amount.
	ErrInsufficientFunds = errors.New("insufficient tokens in the faucet")
	// ErrUnauthorized is returned when a non-operator calls an admin operation.
	ErrUnauthorized = errors.New("caller is not the operator")
	// ErrInvalidAsset is returned for an asset selector outside the configured set.
	ErrInvalidAsset = errors.New("invalid asset")
	// ErrTransferFailed is returned when the underlying token movement is rejected.
	ErrTransferFailed = errors.New("token transfer failed")
	// ErrTransferPending is returned when a transfer was submitted but not confirmed.
	// The operation is recorded as applied and must not be retried.
	ErrTransferPending = errors.New("token transfer pending")
	// ErrInvalidAmount is returned for zero or negative deposit and withdraw amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Kind is the stable label of a faucet error
type Kind string

const (
	KindNone              Kind = ""
	KindNotEligible       Kind = "NotEligible"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindUnauthorized      Kind = "Unauthorized"
	KindInvalidAsset      Kind = "InvalidAsset"
	KindTransferFailed    Kind = "TransferFailed"
	KindTransferPending   Kind = "TransferPending"
	KindInvalidAmount     Kind = "InvalidAmount"
	KindInternal          Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotEligible, KindNotEligible},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidAsset, KindInvalidAsset},
	{ErrTransferFailed, KindTransferFailed},
	{ErrTransferPending, KindTransferPending},
	{ErrInvalidAmount, KindInvalidAmount},
}

// KindOf returns the label of err. Errors that do not wrap a faucet sentinel are
// reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

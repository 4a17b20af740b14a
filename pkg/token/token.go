package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientAllowance mirrors the ERC20 revert for transferFrom without approval.
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	// ErrInsufficientBalance mirrors the ERC20 revert for transfers above the sender balance.
	ErrInsufficientBalance = errors.New("ERC20: transfer amount exceeds balance")
	// ErrOutcomeUnknown is returned when a transfer was submitted but its result could
	// not be observed. The transfer may still take effect.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown")
)

// Token moves a fungible asset on behalf of the faucet's custody account.
type Token interface {
	// Address returns the token contract address.
	Address() common.Address
	// BalanceOf returns the raw balance held by owner.
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	// Transfer sends amount from the custody account to `to`.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	// TransferFrom pulls amount from `from` into `to`, spending the allowance `from`
	// granted to the custody account.
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

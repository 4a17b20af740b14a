package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/store"
	"github.com/zama-ai/token-faucet/pkg/token"
)

var balancePrefix = []byte("b/")

// Vault tracks the balance the faucet custodies for each asset and moves the
// underlying tokens in and out of the custody account.
type Vault struct {
	custody common.Address
}

func NewVault(custody common.Address) *Vault {
	return &Vault{custody: custody}
}

// Custody returns the account holding the vault's tokens.
func (v *Vault) Custody() common.Address { return v.custody }

// Balance returns the recorded balance of asset.
func (v *Vault) Balance(r store.Reader, asset *Asset) (*big.Int, error) {
	value, err := r.Get(balanceKey(asset.Address()))
	if errors.Is(err, store.ErrKeyNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s vault balance: %w", asset.Symbol, err)
	}
	return new(big.Int).SetBytes(value), nil
}

// Credit pulls amount of asset from `from` into custody and stages the increased
// balance in tx. When the pull fails or is left unconfirmed nothing is staged.
func (v *Vault) Credit(ctx context.Context, tx store.WriteTx, asset *Asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit of %s must be positive", ErrInvalidAmount, asset.Symbol)
	}
	balance, err := v.Balance(tx, asset)
	if err != nil {
		return err
	}
	if err := asset.Token.TransferFrom(ctx, from, v.custody, amount); err != nil {
		return fmt.Errorf("%w: pull %s %s from %s: %v", transferErr(err), amount, asset.Symbol, from.Hex(), err)
	}
	return v.setBalance(tx, asset, balance.Add(balance, amount))
}

// Debit checks the recorded balance, sends amount of asset from custody to `to` and
// stages the decreased balance in tx. It never sends a partial amount. A send whose
// outcome is unknown still stages the debit and returns ErrTransferPending.
func (v *Vault) Debit(ctx context.Context, tx store.WriteTx, asset *Asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: debit of %s must be positive", ErrInvalidAmount, asset.Symbol)
	}
	balance, err := v.Balance(tx, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance %s is below %s", ErrInsufficientFunds, asset.Symbol, balance, amount)
	}
	if err := asset.Token.Transfer(ctx, to, amount); err != nil {
		sendErr := fmt.Errorf("%w: send %s %s to %s: %v", transferErr(err), amount, asset.Symbol, to.Hex(), err)
		if !errors.Is(sendErr, ErrTransferPending) {
			return sendErr
		}
		if err := v.setBalance(tx, asset, balance.Sub(balance, amount)); err != nil {
			return err
		}
		return sendErr
	}
	return v.setBalance(tx, asset, balance.Sub(balance, amount))
}

func transferErr(err error) error {
	if errors.Is(err, token.ErrOutcomeUnknown) {
		return ErrTransferPending
	}
	return ErrTransferFailed
}

func (v *Vault) setBalance(tx store.WriteTx, asset *Asset, balance *big.Int) error {
	if err := tx.Set(balanceKey(asset.Address()), balance.Bytes()); err != nil {
		return fmt.Errorf("failed to stage %s vault balance: %w", asset.Symbol, err)
	}
	return nil
}

func balanceKey(asset common.Address) []byte {
	return append(append([]byte{}, balancePrefix...), asset.Bytes()...)
}

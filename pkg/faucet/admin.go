package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

func (f *Faucet) requireOperator(caller common.Address) error {
	if caller != f.operator {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// DepositTokens pulls amount of the selected asset from the operator into the vault.
// The operator must have approved the custody account beforehand.
func (f *Faucet) DepositTokens(ctx context.Context, caller common.Address, selector string, amount *big.Int) (err error) {
	if err := f.requireOperator(caller); err != nil {
		logger.Warnf("[faucet] rejected deposit from %s: not the operator", caller.Hex())
		return err
	}
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return err
	}
	onDone := f.m.RecordRequest(opDeposit, asset.Symbol)
	defer func() {
		onDone(string(KindOf(err)))
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.store.WriteTx()
	defer tx.Discard()

	if err := f.vault.Credit(ctx, tx, asset, caller, amount); err != nil {
		logger.Errorf("%s deposit of %s failed: %v", asset.logPrefix(), amount, err)
		return err
	}
	if err := f.commit(tx, asset); err != nil {
		return err
	}

	amount = new(big.Int).Set(amount)
	f.m.RecordAmount(opDeposit, asset.Symbol, asset.Unit().Float(amount))
	f.emit(Event{Kind: TokensDeposited, Caller: caller, Asset: asset.Address(), Symbol: asset.Symbol, Amount: amount, Time: f.now()})
	logger.Infof("%s operator deposited %s %s", asset.logPrefix(), asset.Unit().Format(amount), asset.Symbol)
	return nil
}

// WithdrawTokens sends amount of the selected asset from the vault to the operator.
func (f *Faucet) WithdrawTokens(ctx context.Context, caller common.Address, selector string, amount *big.Int) (err error) {
	if err := f.requireOperator(caller); err != nil {
		logger.Warnf("[faucet] rejected withdrawal from %s: not the operator", caller.Hex())
		return err
	}
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return err
	}
	onDone := f.m.RecordRequest(opWithdraw, asset.Symbol)
	defer func() {
		onDone(string(KindOf(err)))
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.store.WriteTx()
	defer tx.Discard()

	err = f.vault.Debit(ctx, tx, asset, caller, amount)
	pending := errors.Is(err, ErrTransferPending)
	if err != nil && !pending {
		logger.Errorf("%s withdrawal of %s failed: %v", asset.logPrefix(), amount, err)
		return err
	}
	if cerr := f.commit(tx, asset); cerr != nil {
		return cerr
	}

	amount = new(big.Int).Set(amount)
	f.m.RecordAmount(opWithdraw, asset.Symbol, asset.Unit().Float(amount))
	f.emit(Event{Kind: TokensWithdrawn, Caller: caller, Asset: asset.Address(), Symbol: asset.Symbol, Amount: amount, Time: f.now()})
	if pending {
		logger.Warnf("%s recorded withdrawal of %s, transfer unconfirmed: %v", asset.logPrefix(), asset.Unit().Format(amount), err)
		return err
	}
	logger.Infof("%s operator withdrew %s %s", asset.logPrefix(), asset.Unit().Format(amount), asset.Symbol)
	return nil
}

// RemoveFromWhitelist clears the claim record of account for the selected asset, so
// that account may claim it again.
func (f *Faucet) RemoveFromWhitelist(_ context.Context, caller, account common.Address, selector string) (err error) {
	if err := f.requireOperator(caller); err != nil {
		logger.Warnf("[faucet] rejected whitelist removal from %s: not the operator", caller.Hex())
		return err
	}
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return err
	}
	onDone := f.m.RecordRequest(opRevoke, asset.Symbol)
	defer func() {
		onDone(string(KindOf(err)))
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.store.WriteTx()
	defer tx.Discard()

	if err := f.ledger.Revoke(tx, account, asset.Address()); err != nil {
		return err
	}
	if err := f.commit(tx, asset); err != nil {
		return err
	}

	f.emit(Event{Kind: EligibilityRevoked, Caller: caller, Account: account, Asset: asset.Address(), Symbol: asset.Symbol, Time: f.now()})
	logger.Infof("%s removed %s from the whitelist", asset.logPrefix(), account.Hex())
	return nil
}

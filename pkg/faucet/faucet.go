package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/metrics"
	"github.com/zama-ai/token-faucet/pkg/store"
)

const (
	opRequest  = "request"
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
	opRevoke   = "revoke"
)

// Config holds the immutable construction parameters of a Faucet.
type Config struct {
	// Operator is the only identity allowed to call the admin operations
	Operator common.Address
	// Custody is the account that holds the vault's tokens
	Custody common.Address
	Assets  []*Asset
	Policy  EligibilityPolicy
	Scope   Scope
}

// Faucet distributes fixed allotments of its assets and lets the operator manage the
// pool. Every mutating call is applied as one unit under a single write lock, including
// the token transfer it performs; the store transaction is committed only once the
// transfer succeeded or was sent without a confirmed outcome.
type Faucet struct {
	mu sync.RWMutex

	operator common.Address
	assets   *assetSet
	ledger   *Ledger
	vault    *Vault
	store    store.Store

	sinks []EventSink
	seq   uint64
	m     metrics.Metricer
	now   func() time.Time
}

type Option func(*Faucet)

// WithClock overrides the wall clock used for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(f *Faucet) {
		f.now = now
	}
}

// WithEventSink adds a sink for committed events.
func WithEventSink(sink EventSink) Option {
	return func(f *Faucet) {
		f.sinks = append(f.sinks, sink)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Metricer) Option {
	return func(f *Faucet) {
		f.m = m
	}
}

// New creates a faucet over the given store.
func New(cfg Config, st store.Store, opts ...Option) (*Faucet, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Operator == (common.Address{}) {
		return nil, fmt.Errorf("operator address cannot be zero")
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("custody address cannot be zero")
	}
	if cfg.Operator == cfg.Custody {
		return nil, fmt.Errorf("operator cannot be the custody account %s", cfg.Custody.Hex())
	}
	assets, err := newAssetSet(cfg.Assets)
	if err != nil {
		return nil, err
	}

	f := &Faucet{
		operator: cfg.Operator,
		assets:   assets,
		ledger:   NewLedger(cfg.Policy, cfg.Scope),
		vault:    NewVault(cfg.Custody),
		store:    st,
		sinks:    []EventSink{logSink{}},
		m:        metrics.NoopMetrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	logger.Infof("[faucet] operator %s, custody %s, policy %s, scope %s, %d assets",
		f.operator.Hex(), cfg.Custody.Hex(), f.ledger.Policy().Name(), f.ledger.Scope(), len(assets.ordered))
	return f, nil
}

// Receipt describes a successful claim.
type Receipt struct {
	Caller common.Address
	Asset  *Asset
	Amount *big.Int
	Time   time.Time
}

// RequestTokens grants the claim amount of the selected asset to caller, at most once
// (or once per cooldown) per eligibility record.
func (f *Faucet) RequestTokens(ctx context.Context, caller common.Address, selector string) (receipt *Receipt, err error) {
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return nil, err
	}
	onDone := f.m.RecordRequest(opRequest, asset.Symbol)
	defer func() {
		onDone(string(KindOf(err)))
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := asset.logPrefix()
	now := f.now()
	tx := f.store.WriteTx()
	defer tx.Discard()

	wait, err := f.ledger.TimeUntilNext(tx, caller, asset.Address(), now)
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		logger.Debugf("%s rejected request from %s: not eligible", prefix, caller.Hex())
		return nil, notEligible(asset, caller, wait)
	}

	balance, err := f.vault.Balance(tx, asset)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(asset.ClaimAmount) < 0 {
		logger.Warnf("%s rejected request from %s: vault holds %s, claim is %s", prefix, caller.Hex(),
			asset.Unit().Format(balance), asset.Unit().Format(asset.ClaimAmount))
		return nil, fmt.Errorf("%w: %s balance %s is below the claim amount %s", ErrInsufficientFunds, asset.Symbol, balance, asset.ClaimAmount)
	}

	if err := f.ledger.Record(tx, caller, asset.Address(), now); err != nil {
		return nil, err
	}
	// an unconfirmed send keeps the record so the caller cannot be paid twice
	err = f.vault.Debit(ctx, tx, asset, caller, asset.ClaimAmount)
	pending := errors.Is(err, ErrTransferPending)
	if err != nil && !pending {
		logger.Errorf("%s failed to send claim to %s: %v", prefix, caller.Hex(), err)
		return nil, err
	}
	if cerr := f.commit(tx, asset); cerr != nil {
		return nil, cerr
	}

	amount := new(big.Int).Set(asset.ClaimAmount)
	f.m.RecordAmount(opRequest, asset.Symbol, asset.Unit().Float(amount))
	f.emit(Event{Kind: TokensRequested, Caller: caller, Asset: asset.Address(), Symbol: asset.Symbol, Amount: amount, Time: now})
	if pending {
		logger.Warnf("%s recorded claim of %s, transfer unconfirmed: %v", prefix, caller.Hex(), err)
		return nil, err
	}
	logger.Infof("%s sent %s %s to %s", prefix, asset.Unit().Format(amount), asset.Symbol, caller.Hex())

	return &Receipt{Caller: caller, Asset: asset, Amount: amount, Time: now}, nil
}

// Owner returns the operator identity.
func (f *Faucet) Owner() common.Address {
	return f.operator
}

// Custody returns the account holding the vault's tokens.
func (f *Faucet) Custody() common.Address {
	return f.vault.Custody()
}

// Policy returns the eligibility policy and record scope.
func (f *Faucet) Policy() (EligibilityPolicy, Scope) {
	return f.ledger.Policy(), f.ledger.Scope()
}

// Assets returns the configured assets in configuration order.
func (f *Faucet) Assets() []*Asset {
	return append([]*Asset(nil), f.assets.ordered...)
}

// Asset resolves an asset selector.
func (f *Faucet) Asset(selector string) (*Asset, error) {
	return f.assets.resolve(selector)
}

// Balance returns the vault balance of the selected asset.
func (f *Faucet) Balance(selector string) (*big.Int, error) {
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vault.Balance(f.store, asset)
}

// IsEligible reports whether account may claim the selected asset now.
func (f *Faucet) IsEligible(account common.Address, selector string) (bool, error) {
	wait, err := f.TimeUntilNextRequest(account, selector)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// HasReceived reports whether account holds a claim record for the selected asset.
func (f *Faucet) HasReceived(account common.Address, selector string) (bool, error) {
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ledger.HasReceived(f.store, account, asset.Address())
}

// TimeUntilNextRequest returns how long account must wait before claiming the
// selected asset; Forever under the one-shot policy once claimed.
func (f *Faucet) TimeUntilNextRequest(account common.Address, selector string) (time.Duration, error) {
	asset, err := f.assets.resolve(selector)
	if err != nil {
		return 0, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ledger.TimeUntilNext(f.store, account, asset.Address(), f.now())
}

// Events returns up to limit of the most recent events when an EventLog is attached.
func (f *Faucet) Events(limit int) []Event {
	for _, sink := range f.sinks {
		if l, ok := sink.(*EventLog); ok {
			return l.Recent(limit)
		}
	}
	return nil
}

func (f *Faucet) commit(tx store.WriteTx, asset *Asset) error {
	if err := tx.Commit(); err != nil {
		// the token transfer already happened; the reconciler reports the drift
		logger.Errorf("%s failed to commit state after transfer: %v", asset.logPrefix(), err)
		return fmt.Errorf("failed to commit faucet state: %w", err)
	}
	return nil
}

// emit must be called with f.mu held so that sequence numbers follow commit order.
func (f *Faucet) emit(e Event) {
	f.seq++
	e.Seq = f.seq
	for _, sink := range f.sinks {
		sink.Emit(e)
	}
}

func notEligible(asset *Asset, caller common.Address, wait time.Duration) error {
	if wait == Forever {
		return fmt.Errorf("%w: %s has already received %s tokens", ErrNotEligible, caller.Hex(), asset.Symbol)
	}
	return fmt.Errorf("%w: %s must wait %s before requesting %s again", ErrNotEligible, caller.Hex(), wait.Round(time.Second), asset.Symbol)
}

// logPrefix returns a consistent log prefix for operations on the asset
func (a *Asset) logPrefix() string {
	return fmt.Sprintf("[faucet %s]", a.Symbol)
}

package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zama-ai/token-faucet/pkg/currency"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/store"
	"github.com/zama-ai/token-faucet/pkg/token"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	user1    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	user2    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	attacker = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	tk1Addr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tk2Addr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func init() {
	_ = logger.InitLogger()
}

// units converts a display amount of an 18-decimal token to base units.
func units(amount string) *big.Int {
	v, err := currency.ParseAmount(amount, 18)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t      *testing.T
	faucet *Faucet
	tk1    *token.Memory
	tk2    *token.Memory
	clock  *fakeClock
	events *EventLog
	store  store.Store
}

type harnessOption struct {
	policy EligibilityPolicy
	scope  Scope
	store  store.Store
	// deposit is funded into each asset at setup; empty skips funding
	deposit string
}

func newHarness(t *testing.T, opt harnessOption) *harness {
	t.Helper()
	tk1 := token.NewMemory(tk1Addr, "TK1", 18)
	tk2 := token.NewMemory(tk2Addr, "TK2", 18)
	tk1.Mint(operator, units("1000000"))
	tk2.Mint(operator, units("1000000"))

	st := opt.store
	if st == nil {
		st = store.NewMemory()
	}
	h := &harness{
		t:      t,
		tk1:    tk1,
		tk2:    tk2,
		clock:  &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		events: NewEventLog(0),
		store:  st,
	}
	f, err := New(Config{
		Operator: operator,
		Custody:  custody,
		Assets: []*Asset{
			{Symbol: "TK1", Decimals: 18, ClaimAmount: units("100"), Token: tk1.As(custody)},
			{Symbol: "TK2", Decimals: 18, ClaimAmount: units("100"), Token: tk2.As(custody)},
		},
		Policy: opt.policy,
		Scope:  opt.scope,
	}, st, WithClock(h.clock.Now), WithEventSink(h.events))
	require.NoError(t, err)
	h.faucet = f

	if opt.deposit != "" {
		h.fund("TK1", opt.deposit)
		h.fund("TK2", opt.deposit)
	}
	return h
}

func (h *harness) fund(asset, amount string) {
	h.t.Helper()
	tk := h.tk1
	if asset == "TK2" {
		tk = h.tk2
	}
	tk.Approve(operator, custody, units(amount))
	require.NoError(h.t, h.faucet.DepositTokens(context.Background(), operator, asset, units(amount)))
}

func (h *harness) vault(asset string) *big.Int {
	h.t.Helper()
	b, err := h.faucet.Balance(asset)
	require.NoError(h.t, err)
	return b
}

func (h *harness) tokenBalance(tk *token.Memory, account common.Address) *big.Int {
	h.t.Helper()
	b, err := tk.BalanceOf(context.Background(), account)
	require.NoError(h.t, err)
	return b
}

func (h *harness) eligible(account common.Address, asset string) bool {
	h.t.Helper()
	ok, err := h.faucet.IsEligible(account, asset)
	require.NoError(h.t, err)
	return ok
}

func TestNewValidatesConfig(t *testing.T) {
	tk := token.NewMemory(tk1Addr, "TK1", 18).As(custody)
	valid := func() Config {
		return Config{
			Operator: operator,
			Custody:  custody,
			Assets:   []*Asset{{Symbol: "TK1", Decimals: 18, ClaimAmount: units("100"), Token: tk}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero operator", func(c *Config) { c.Operator = common.Address{} }},
		{"zero custody", func(c *Config) { c.Custody = common.Address{} }},
		{"operator is custody", func(c *Config) { c.Operator = custody }},
		{"no assets", func(c *Config) { c.Assets = nil }},
		{"zero claim amount", func(c *Config) { c.Assets[0].ClaimAmount = new(big.Int) }},
		{"missing symbol", func(c *Config) { c.Assets[0].Symbol = "" }},
		{"duplicate symbol", func(c *Config) {
			c.Assets = append(c.Assets, &Asset{Symbol: "tk1", ClaimAmount: big.NewInt(1), Token: token.NewMemory(tk2Addr, "TK1", 18).As(custody)})
		}},
		{"duplicate address", func(c *Config) {
			c.Assets = append(c.Assets, &Asset{Symbol: "TK2", ClaimAmount: big.NewInt(1), Token: tk})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			_, err := New(cfg, store.NewMemory())
			assert.Error(t, err)
		})
	}

	_, err := New(valid(), nil)
	assert.Error(t, err, "store is required")

	f, err := New(valid(), store.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, operator, f.Owner())
	assert.Equal(t, custody, f.Custody())
	policy, scope := f.Policy()
	assert.Equal(t, OneShot{}, policy)
	assert.Equal(t, ScopeAsset, scope)
}

func TestInitialState(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	assert.Equal(t, operator, h.faucet.Owner())
	assert.Equal(t, units("500"), h.vault("TK1"))
	assert.Equal(t, units("500"), h.vault("TK2"))
	assert.Equal(t, units("999500"), h.tokenBalance(h.tk1, operator))
	assert.Equal(t, units("500"), h.tokenBalance(h.tk1, custody))

	assets := h.faucet.Assets()
	require.Len(t, assets, 2)
	assert.Equal(t, "TK1", assets[0].Symbol)
	assert.Equal(t, tk2Addr, assets[1].Address())
}

func TestRequestTokens(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	receipt, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, user1, receipt.Caller)
	assert.Equal(t, units("100"), receipt.Amount)
	assert.Equal(t, "TK1", receipt.Asset.Symbol)

	assert.Equal(t, units("400"), h.vault("TK1"))
	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1))
	assert.False(t, h.eligible(user1, "TK1"))

	received, err := h.faucet.HasReceived(user1, "TK1")
	require.NoError(t, err)
	assert.True(t, received)

	events := h.faucet.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, TokensRequested, events[0].Kind)
	assert.Equal(t, user1, events[0].Caller)
	assert.Equal(t, tk1Addr, events[0].Asset)
	assert.Equal(t, units("100"), events[0].Amount)
}

func TestRequestTokensTwiceIsRejected(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, KindNotEligible, KindOf(err))
	assert.Contains(t, err.Error(), "already received TK1 tokens")

	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1), "no double transfer")
	assert.Equal(t, units("400"), h.vault("TK1"))

	wait, err := h.faucet.TimeUntilNextRequest(user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, Forever, wait)
}

func TestAssetsAreIndependent(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	assert.True(t, h.eligible(user1, "TK2"), "claiming TK1 must not affect TK2")

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK2")
	require.NoError(t, err)

	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1))
	assert.Equal(t, units("100"), h.tokenBalance(h.tk2, user1))

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	assert.ErrorIs(t, err, ErrNotEligible)
	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK2")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestBalancesAfterMultipleRequests(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, units("400"), h.tokenBalance(h.tk1, custody))

	_, err = h.faucet.RequestTokens(context.Background(), user2, "TK1")
	require.NoError(t, err)
	assert.Equal(t, units("300"), h.tokenBalance(h.tk1, custody))
	assert.Equal(t, units("300"), h.vault("TK1"))
}

func TestDrainScenario(t *testing.T) {
	h := newHarness(t, harnessOption{})
	h.fund("TK1", "500")

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, units("400"), h.vault("TK1"))
	assert.False(t, h.eligible(user1, "TK1"))

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	assert.ErrorIs(t, err, ErrNotEligible)

	require.NoError(t, h.faucet.WithdrawTokens(context.Background(), operator, "TK1", units("400")))
	assert.Zero(t, h.vault("TK1").Sign())

	_, err = h.faucet.RequestTokens(context.Background(), user2, "TK1")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.True(t, h.eligible(user2, "TK1"), "rejected claim must not record eligibility")
}

func TestEmptyAssetIsRejected(t *testing.T) {
	h := newHarness(t, harnessOption{})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK2")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestEligibilityCheckedBeforeBalance(t *testing.T) {
	h := newHarness(t, harnessOption{})
	h.fund("TK1", "100")

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)

	// the vault is empty now, but the caller's ineligibility is reported first
	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestRemoveFromWhitelist(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK2")
	require.NoError(t, err)

	require.NoError(t, h.faucet.RemoveFromWhitelist(context.Background(), operator, user1, "TK1"))

	received, err := h.faucet.HasReceived(user1, "TK1")
	require.NoError(t, err)
	assert.False(t, received)
	assert.True(t, h.eligible(user1, "TK1"))
	assert.False(t, h.eligible(user1, "TK2"), "revoke must not touch the other asset")

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, units("200"), h.tokenBalance(h.tk1, user1))

	events := h.faucet.Events(0)
	var revoked []Event
	for _, e := range events {
		if e.Kind == EligibilityRevoked {
			revoked = append(revoked, e)
		}
	}
	require.Len(t, revoked, 1)
	assert.Equal(t, user1, revoked[0].Account)
	assert.Equal(t, operator, revoked[0].Caller)
}

func TestRemoveFromWhitelistWithoutRecord(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	require.NoError(t, h.faucet.RemoveFromWhitelist(context.Background(), operator, user2, "TK2"))
	assert.True(t, h.eligible(user2, "TK2"))
}

func TestAdminOperationsRequireOperator(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})
	_, err := h.faucet.RequestTokens(context.Background(), user2, "TK1")
	require.NoError(t, err)

	h.tk1.Mint(attacker, units("100"))
	h.tk1.Approve(attacker, custody, units("100"))
	before := len(h.faucet.Events(0))

	err = h.faucet.DepositTokens(context.Background(), attacker, "TK1", units("100"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	err = h.faucet.WithdrawTokens(context.Background(), attacker, "TK1", units("100"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = h.faucet.RemoveFromWhitelist(context.Background(), attacker, user2, "TK1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = h.faucet.WithdrawTokens(context.Background(), user1, "nope", units("100"))
	assert.ErrorIs(t, err, ErrUnauthorized, "authorization is checked before the asset")

	assert.Equal(t, units("400"), h.vault("TK1"))
	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, attacker))
	assert.False(t, h.eligible(user2, "TK1"))
	assert.Len(t, h.faucet.Events(0), before)
}

func TestDepositAndWithdrawEvents(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	h.fund("TK1", "100")
	events := h.faucet.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, TokensDeposited, events[0].Kind)
	assert.Equal(t, tk1Addr, events[0].Asset)
	assert.Equal(t, units("100"), events[0].Amount)

	require.NoError(t, h.faucet.WithdrawTokens(context.Background(), operator, "TK1", units("100")))
	events = h.faucet.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, TokensWithdrawn, events[0].Kind)
	assert.Equal(t, units("100"), events[0].Amount)
	assert.Equal(t, units("999500"), h.tokenBalance(h.tk1, operator))
}

func TestDepositRequiresAllowance(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	err := h.faucet.DepositTokens(context.Background(), operator, "TK1", units("100"))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, KindTransferFailed, KindOf(err))
	assert.ErrorContains(t, err, "insufficient allowance")
	assert.Equal(t, units("500"), h.vault("TK1"))
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	err := h.faucet.WithdrawTokens(context.Background(), operator, "TK1", units("501"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, units("500"), h.vault("TK1"))
	assert.Equal(t, units("500"), h.tokenBalance(h.tk1, custody))
}

func TestInvalidAmounts(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		err := h.faucet.DepositTokens(context.Background(), operator, "TK1", amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		err = h.faucet.WithdrawTokens(context.Background(), operator, "TK1", amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Equal(t, units("500"), h.vault("TK1"))
}

func TestInvalidAsset(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK3")
	require.ErrorIs(t, err, ErrInvalidAsset)
	assert.Equal(t, KindInvalidAsset, KindOf(err))

	_, err = h.faucet.Balance("0x00000000000000000000000000000000000000a9")
	assert.ErrorIs(t, err, ErrInvalidAsset)
	_, err = h.faucet.IsEligible(user1, "")
	assert.ErrorIs(t, err, ErrInvalidAsset)
	err = h.faucet.DepositTokens(context.Background(), operator, "TK3", units("1"))
	assert.ErrorIs(t, err, ErrInvalidAsset)
}

func TestAssetSelectors(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	for _, selector := range []string{"TK1", "tk1", " Tk1 ", tk1Addr.Hex(), "0x00000000000000000000000000000000000000A1"} {
		asset, err := h.faucet.Asset(selector)
		require.NoError(t, err, selector)
		assert.Equal(t, "TK1", asset.Symbol)
	}

	_, err := h.faucet.RequestTokens(context.Background(), user1, tk2Addr.Hex())
	require.NoError(t, err)
	assert.False(t, h.eligible(user1, "TK2"))
}

func TestTransferFailureLeavesNoState(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})
	before := len(h.faucet.Events(0))

	h.tk1.FailNext(errors.New("execution reverted"))
	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, KindTransferFailed, KindOf(err))

	assert.True(t, h.eligible(user1, "TK1"), "eligibility must not be recorded")
	assert.Equal(t, units("500"), h.vault("TK1"))
	assert.Zero(t, h.tokenBalance(h.tk1, user1).Sign())
	assert.Len(t, h.faucet.Events(0), before)

	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err, "the caller can retry after a failed transfer")

	h.tk1.FailNext(errors.New("nonce too low"))
	err = h.faucet.WithdrawTokens(context.Background(), operator, "TK1", units("10"))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, units("400"), h.vault("TK1"))
}

// unconfirmedToken submits every transfer but never learns its outcome. When land is
// set the transfer takes effect anyway.
type unconfirmedToken struct {
	token.Token
	land bool
}

func (u *unconfirmedToken) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if u.land {
		if err := u.Token.Transfer(ctx, to, amount); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: receipt wait timed out", token.ErrOutcomeUnknown)
}

func (u *unconfirmedToken) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if u.land {
		if err := u.Token.TransferFrom(ctx, from, to, amount); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: receipt wait timed out", token.ErrOutcomeUnknown)
}

func TestUnconfirmedTransferIsNotRepeated(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})
	ctx := context.Background()

	unconfirmed := &unconfirmedToken{Token: h.tk1.As(custody), land: true}
	f, err := New(Config{
		Operator: operator,
		Custody:  custody,
		Assets:   []*Asset{{Symbol: "TK1", Decimals: 18, ClaimAmount: units("100"), Token: unconfirmed}},
		Policy:   OneShot{},
	}, h.store, WithClock(h.clock.Now))
	require.NoError(t, err)

	_, err = f.RequestTokens(ctx, user1, "TK1")
	require.ErrorIs(t, err, ErrTransferPending)
	assert.Equal(t, KindTransferPending, KindOf(err))

	eligible, err := f.IsEligible(user1, "TK1")
	require.NoError(t, err)
	assert.False(t, eligible, "the claim stays recorded")
	received, err := f.HasReceived(user1, "TK1")
	require.NoError(t, err)
	assert.True(t, received)

	balance, err := f.Balance("TK1")
	require.NoError(t, err)
	assert.Equal(t, units("400"), balance)
	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1))
	assert.Equal(t, h.tokenBalance(h.tk1, custody), balance)

	_, err = f.RequestTokens(ctx, user1, "TK1")
	require.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1), "no second payout")

	// a withdrawal that never lands leaves custody holding more than the vault records
	unconfirmed.land = false
	err = f.WithdrawTokens(ctx, operator, "TK1", units("50"))
	require.ErrorIs(t, err, ErrTransferPending)
	balance, err = f.Balance("TK1")
	require.NoError(t, err)
	assert.Equal(t, units("350"), balance)
	assert.Equal(t, units("400"), h.tokenBalance(h.tk1, custody))

	// an unconfirmed deposit is not credited
	err = f.DepositTokens(ctx, operator, "TK1", units("10"))
	require.ErrorIs(t, err, ErrTransferPending)
	balance, err = f.Balance("TK1")
	require.NoError(t, err)
	assert.Equal(t, units("350"), balance)
}

func TestConservation(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})
	ctx := context.Background()

	expected := units("500")
	callers := []common.Address{user1, user2, attacker, user1, user2}
	for i, caller := range callers {
		if _, err := h.faucet.RequestTokens(ctx, caller, "TK1"); err == nil {
			expected.Sub(expected, units("100"))
		}
		if i == 1 {
			h.fund("TK1", "250")
			expected.Add(expected, units("250"))
		}
		if i == 3 {
			require.NoError(t, h.faucet.WithdrawTokens(ctx, operator, "TK1", units("50")))
			expected.Sub(expected, units("50"))
		}
	}
	// three distinct callers succeeded: 500 + 250 - 50 - 3*100
	assert.Equal(t, units("400"), expected)
	assert.Equal(t, expected, h.vault("TK1"))
	assert.Equal(t, h.tokenBalance(h.tk1, custody), h.vault("TK1"))
}

func TestCooldownPolicy(t *testing.T) {
	h := newHarness(t, harnessOption{policy: Cooldown{Period: 24 * time.Hour}, deposit: "500"})
	ctx := context.Background()

	_, err := h.faucet.RequestTokens(ctx, user1, "TK1")
	require.NoError(t, err)

	h.clock.Advance(24*time.Hour - 2*time.Second)
	_, err = h.faucet.RequestTokens(ctx, user1, "TK1")
	require.ErrorIs(t, err, ErrNotEligible)
	assert.Contains(t, err.Error(), "must wait 2s")

	wait, err := h.faucet.TimeUntilNextRequest(user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)

	h.clock.Advance(3 * time.Second)
	_, err = h.faucet.RequestTokens(ctx, user1, "TK1")
	require.NoError(t, err)
	assert.Equal(t, units("200"), h.tokenBalance(h.tk1, user1))
	assert.Equal(t, units("300"), h.vault("TK1"))
}

func TestCooldownRevokeResetsTimer(t *testing.T) {
	h := newHarness(t, harnessOption{policy: Cooldown{Period: time.Hour}, deposit: "500"})
	ctx := context.Background()

	_, err := h.faucet.RequestTokens(ctx, user1, "TK1")
	require.NoError(t, err)
	require.NoError(t, h.faucet.RemoveFromWhitelist(ctx, operator, user1, "TK1"))

	_, err = h.faucet.RequestTokens(ctx, user1, "TK1")
	assert.NoError(t, err)
}

func TestGlobalScopeSharesCooldown(t *testing.T) {
	h := newHarness(t, harnessOption{policy: Cooldown{Period: 24 * time.Hour}, scope: ScopeGlobal, deposit: "500"})
	ctx := context.Background()

	_, err := h.faucet.RequestTokens(ctx, user1, "TK1")
	require.NoError(t, err)

	_, err = h.faucet.RequestTokens(ctx, user1, "TK2")
	assert.ErrorIs(t, err, ErrNotEligible, "global scope shares the cooldown across assets")

	wait1, err := h.faucet.TimeUntilNextRequest(user1, "TK1")
	require.NoError(t, err)
	wait2, err := h.faucet.TimeUntilNextRequest(user1, "TK2")
	require.NoError(t, err)
	assert.Equal(t, wait1, wait2)

	h.clock.Advance(24 * time.Hour)
	_, err = h.faucet.RequestTokens(ctx, user1, "TK2")
	assert.NoError(t, err)
}

func TestConcurrentClaimsOnSamePair(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	var (
		wg          sync.WaitGroup
		successes   atomic.Int32
		notEligible atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrNotEligible):
				notEligible.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(19), notEligible.Load())
	assert.Equal(t, units("100"), h.tokenBalance(h.tk1, user1))
	assert.Equal(t, units("400"), h.vault("TK1"))
}

func TestConcurrentClaimsByDifferentCallers(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		insufficient atomic.Int32
	)
	for i := 1; i <= 8; i++ {
		caller := common.BigToAddress(big.NewInt(int64(1000 + i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.faucet.RequestTokens(context.Background(), caller, "TK1")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInsufficientFunds):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), successes.Load())
	assert.Equal(t, int32(3), insufficient.Load())
	assert.Zero(t, h.vault("TK1").Sign())
	assert.Zero(t, h.tokenBalance(h.tk1, custody).Sign())
}

func TestEventSequence(t *testing.T) {
	h := newHarness(t, harnessOption{deposit: "500"})

	_, err := h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)

	events := h.faucet.Events(0)
	require.Len(t, events, 3)
	assert.Equal(t, []EventKind{TokensRequested, TokensDeposited, TokensDeposited},
		[]EventKind{events[0].Kind, events[1].Kind, events[2].Kind})
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(1), events[2].Seq)
}

func TestPebbleBackedStateSurvivesRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	st, err := store.NewPebble(dir)
	require.NoError(t, err)

	h := newHarness(t, harnessOption{store: st, deposit: "500"})
	_, err = h.faucet.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = store.NewPebble(dir)
	require.NoError(t, err)
	defer st.Close()

	f, err := New(Config{
		Operator: operator,
		Custody:  custody,
		Assets: []*Asset{
			{Symbol: "TK1", Decimals: 18, ClaimAmount: units("100"), Token: h.tk1.As(custody)},
		},
	}, st)
	require.NoError(t, err)

	balance, err := f.Balance("TK1")
	require.NoError(t, err)
	assert.Equal(t, units("400"), balance)

	_, err = f.RequestTokens(context.Background(), user1, "TK1")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	m := &recordingMetrics{}
	tk := token.NewMemory(tk1Addr, "TK1", 18)
	f, err := New(Config{
		Operator: operator,
		Custody:  custody,
		Assets:   []*Asset{{Symbol: "TK1", Decimals: 18, ClaimAmount: units("100"), Token: tk.As(custody)}},
	}, store.NewMemory(), WithMetrics(m))
	require.NoError(t, err)

	_, err = f.RequestTokens(context.Background(), user1, "TK1")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	tk.Mint(operator, units("100"))
	tk.Approve(operator, custody, units("100"))
	require.NoError(t, f.DepositTokens(context.Background(), operator, "TK1", units("100")))
	_, err = f.RequestTokens(context.Background(), user1, "TK1")
	require.NoError(t, err)

	assert.Equal(t, []string{"request:TK1:InsufficientFunds", "deposit:TK1:", "request:TK1:"}, m.results)
	assert.Equal(t, []float64{100, 100}, m.amounts)
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
	amounts []float64
}

func (m *recordingMetrics) RecordInfo(string) {}
func (m *recordingMetrics) RecordUp()         {}
func (m *recordingMetrics) RecordRequest(op, asset string) func(kind string) {
	return func(kind string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.results = append(m.results, op+":"+asset+":"+kind)
	}
}
func (m *recordingMetrics) RecordAmount(_, _ string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amounts = append(m.amounts, amount)
}
func (m *recordingMetrics) RecordDrift(string, float64) {}

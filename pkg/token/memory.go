package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is an in-process ERC20 ledger. It backs the local development chain and the
// tests; it follows ERC20 transfer and allowance semantics without any gas or events.
type Memory struct {
	mu         sync.Mutex
	address    common.Address
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	// failNext, when set, makes the next transfer fail with the given error
	failNext error
}

// NewMemory creates an empty in-memory token.
func NewMemory(address common.Address, symbol string, decimals uint8) *Memory {
	return &Memory{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (m *Memory) Address() common.Address { return m.address }

func (m *Memory) Symbol() string { return m.symbol }

func (m *Memory) Decimals() uint8 { return m.decimals }

// Mint credits amount to account. Only used to seed pre-existing supply.
func (m *Memory) Mint(account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Add(m.balanceOf(account), amount)
}

// Approve sets the allowance owner grants to spender.
func (m *Memory) Approve(owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]*big.Int)
	}
	m.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns the amount spender may still pull from owner.
func (m *Memory) Allowance(owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowance(owner, spender))
}

// FailNext makes the next Transfer or TransferFrom return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceOf(owner)), nil
}

// As returns a Token view that acts with sender as msg.sender.
func (m *Memory) As(sender common.Address) Token {
	return &memoryAccount{token: m, sender: sender}
}

func (m *Memory) transfer(from, to common.Address, amount *big.Int) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	balance := m.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	m.balances[from] = new(big.Int).Sub(balance, amount)
	m.balances[to] = new(big.Int).Add(m.balanceOf(to), amount)
	return nil
}

func (m *Memory) transferFrom(spender, from, to common.Address, amount *big.Int) error {
	allowance := m.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.transfer(from, to, amount); err != nil {
		return err
	}
	m.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *Memory) balanceOf(owner common.Address) *big.Int {
	if balance, ok := m.balances[owner]; ok {
		return balance
	}
	return new(big.Int)
}

func (m *Memory) allowance(owner, spender common.Address) *big.Int {
	if spenders, ok := m.allowances[owner]; ok {
		if value, ok := spenders[spender]; ok {
			return value
		}
	}
	return new(big.Int)
}

type memoryAccount struct {
	token  *Memory
	sender common.Address
}

func (a *memoryAccount) Address() common.Address { return a.token.address }

func (a *memoryAccount) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return a.token.BalanceOf(ctx, owner)
}

func (a *memoryAccount) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	a.token.mu.Lock()
	defer a.token.mu.Unlock()
	return a.token.transfer(a.sender, to, amount)
}

func (a *memoryAccount) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	a.token.mu.Lock()
	defer a.token.mu.Unlock()
	return a.token.transferFrom(a.sender, from, to, amount)
}

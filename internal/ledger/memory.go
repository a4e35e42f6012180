// Package ledger provides implementations of the fungible-token ledger the
// market pays through: an in-process ledger with ERC-20 allowance semantics
// and an adapter backed by a real ERC-20 contract over JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adcal/slotmarket/internal/domain"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated transfer
	// exceeds the spender's approved allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Memory is an in-process fungible-token ledger with ERC-20 transfer and
// allowance bookkeeping. Every call is atomic under one mutex.
type Memory struct {
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	allowance map[common.Address]map[common.Address]*big.Int
}

// NewMemory creates a ledger with the full supply held by treasury.
func NewMemory(treasury common.Address, supply *big.Int) *Memory {
	balances := make(map[common.Address]*big.Int)
	if supply != nil && supply.Sign() > 0 {
		balances[treasury] = new(big.Int).Set(supply)
	}
	return &Memory{
		balances:  balances,
		allowance: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// BalanceOf returns account's balance. Unknown accounts hold zero.
func (m *Memory) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balance(account)), nil
}

// Approve sets spender's allowance over owner's tokens. The owner is an
// explicit parameter because an in-process ledger has no transaction-sender
// context.
func (m *Memory) Approve(owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byOwner, ok := m.allowance[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		m.allowance[owner] = byOwner
	}
	if amount == nil {
		amount = new(big.Int)
	}
	byOwner[spender] = new(big.Int).Set(amount)
}

// Allowance returns what spender may still move on owner's behalf.
func (m *Memory) Allowance(owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.remaining(owner, spender))
}

// Bind returns a ledger handle whose Transfer and TransferFrom calls run in
// account's holder/spender context. The market binds its own address so
// buyers approve the market as spender.
func (m *Memory) Bind(account common.Address) domain.TokenLedger {
	return &session{ledger: m, account: account}
}

// session is a Memory handle bound to a single acting account.
type session struct {
	ledger  *Memory
	account common.Address
}

func (s *session) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return s.ledger.BalanceOf(ctx, account)
}

// Transfer moves amount from the bound account to `to`.
func (s *session) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.ledger.move(s.account, to, amount)
}

// TransferFrom moves amount from `from` to `to`, consuming the bound
// account's allowance over `from`.
func (s *session) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must be a non-negative integer")
	}

	remaining := s.ledger.remaining(from, s.account)
	if remaining.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: transfer %s from %s: %w", amount, from, ErrInsufficientAllowance)
	}

	if err := s.ledger.move(from, to, amount); err != nil {
		return err
	}

	byOwner, ok := s.ledger.allowance[from]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		s.ledger.allowance[from] = byOwner
	}
	byOwner[s.account] = new(big.Int).Sub(remaining, amount)
	return nil
}

// balance returns the stored balance value, never nil. Caller holds mu.
func (m *Memory) balance(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

// remaining returns the stored allowance value, never nil. Caller holds mu.
func (m *Memory) remaining(owner, spender common.Address) *big.Int {
	if byOwner, ok := m.allowance[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

// move debits from and credits to. Caller holds mu.
func (m *Memory) move(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must be a non-negative integer")
	}

	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: transfer %s from %s: %w", amount, from, ErrInsufficientBalance)
	}

	m.balances[from] = new(big.Int).Sub(fromBal, amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

var _ domain.TokenLedger = (*session)(nil)

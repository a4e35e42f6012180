// Package market implements the day-slot ownership state machine: a fixed
// arena of calendar-day ad slots, each with an owner, display content, a
// fixed ask price, and at most one open bid. Ownership changes through
// administrative reassignment, direct purchase at the ask price, or
// owner-accepted bids; the two paid paths move tokens through the ledger
// atomically with the ownership change.
package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adcal/slotmarket/internal/domain"
)

// Config holds the immutable construction parameters of a Market.
type Config struct {
	// Ledger moves payment between buyer and seller.
	Ledger domain.TokenLedger

	// Days is the number of slots in the arena.
	Days int

	// StartDay aligns day index 0 to a calendar day (days since the Unix
	// epoch). It is not otherwise exercised by the transition logic.
	StartDay int64

	// Deployer owns every slot at construction.
	Deployer common.Address

	// DefaultAdURL and DefaultAdImageURL seed every slot's content.
	DefaultAdURL      string
	DefaultAdImageURL string

	// DefaultAskPrice seeds every slot's ask price, in token base units.
	DefaultAskPrice *big.Int
}

// Market owns all slot state and enforces the authorization and payment
// rules for every transition. A single mutex serializes mutations so no
// operation ever observes a partially updated slot; the mutex stays held
// across the ledger call, so with the erc20 backend every slot waits behind
// one mined transaction. TODO: move to per-slot locks if ERC-20 deployments
// need concurrent purchases across different days.
type Market struct {
	mu       sync.RWMutex
	slots    []domain.Slot
	ledger   domain.TokenLedger
	startDay int64
}

// New creates a Market with cfg.Days slots, all owned by cfg.Deployer and
// carrying the configured default content and ask price.
func New(cfg Config) (*Market, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("market: ledger is required")
	}
	if cfg.Days <= 0 {
		return nil, fmt.Errorf("market: day count must be positive, got %d", cfg.Days)
	}
	if cfg.DefaultAskPrice == nil || cfg.DefaultAskPrice.Sign() < 0 {
		return nil, fmt.Errorf("market: default ask price must be a non-negative integer")
	}

	slots := make([]domain.Slot, cfg.Days)
	now := time.Now().UTC()
	for i := range slots {
		slots[i] = domain.Slot{
			Day:        i,
			Owner:      cfg.Deployer,
			AdURL:      cfg.DefaultAdURL,
			AdImageURL: cfg.DefaultAdImageURL,
			AskPrice:   new(big.Int).Set(cfg.DefaultAskPrice),
			UpdatedAt:  now,
		}
	}

	return &Market{
		slots:    slots,
		ledger:   cfg.Ledger,
		startDay: cfg.StartDay,
	}, nil
}

// Days returns the number of slots in the arena.
func (m *Market) Days() int {
	return len(m.slots)
}

// Slot returns a copy of the slot's public state.
func (m *Market) Slot(day int) (domain.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(day); err != nil {
		return domain.Slot{}, err
	}
	return m.slots[day].Clone(), nil
}

// Snapshot returns a copy of every slot, for persistence and listings.
func (m *Market) Snapshot() []domain.Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Slot, len(m.slots))
	for i := range m.slots {
		out[i] = m.slots[i].Clone()
	}
	return out
}

// Restore overwrites slot state from a persisted snapshot. Slots whose day
// index falls outside the arena are ignored; the arena size is fixed at
// construction and never changes.
func (m *Market) Restore(slots []domain.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range slots {
		if s.Day < 0 || s.Day >= len(m.slots) {
			continue
		}
		m.slots[s.Day] = s.Clone()
	}
}

// OwnerOf returns the slot's current owner.
func (m *Market) OwnerOf(day int) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(day); err != nil {
		return common.Address{}, err
	}
	return m.slots[day].Owner, nil
}

// SetOwner reassigns the slot to newOwner without payment. Only the current
// owner may call it; content, price, and any open bid are untouched.
func (m *Market) SetOwner(day int, newOwner, caller common.Address) (domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.authorize(day, caller); err != nil {
		return domain.Slot{}, err
	}

	m.slots[day].Owner = newOwner
	m.slots[day].UpdatedAt = time.Now().UTC()
	return m.slots[day].Clone(), nil
}

// SetContent replaces both display strings. Only the current owner may call
// it; either both change or neither does.
func (m *Market) SetContent(day int, url, imageURL string, caller common.Address) (domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.authorize(day, caller); err != nil {
		return domain.Slot{}, err
	}

	m.slots[day].AdURL = url
	m.slots[day].AdImageURL = imageURL
	m.slots[day].UpdatedAt = time.Now().UTC()
	return m.slots[day].Clone(), nil
}

// SetAskPrice replaces the slot's ask price. Only the current owner may call
// it. Zero is legal and means free.
func (m *Market) SetAskPrice(day int, price *big.Int, caller common.Address) (domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.authorize(day, caller); err != nil {
		return domain.Slot{}, err
	}
	if price == nil || price.Sign() < 0 {
		return domain.Slot{}, fmt.Errorf("market: day %d: ask price must be a non-negative integer", day)
	}

	m.slots[day].AskPrice = new(big.Int).Set(price)
	m.slots[day].UpdatedAt = time.Now().UTC()
	return m.slots[day].Clone(), nil
}

// BuyFromAsk transfers the ask price from caller to the current owner and,
// only when that payment succeeds, makes caller the new owner. The ask
// price, content, and any open bid survive the sale unchanged; the new
// owner inherits the previous owner's listing as-is.
func (m *Market) BuyFromAsk(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(day); err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}

	seller := m.slots[day].Owner
	price := new(big.Int).Set(m.slots[day].AskPrice)

	// Pay first; commit the ownership change only on success.
	if err := m.ledger.TransferFrom(ctx, caller, seller, price); err != nil {
		return domain.Slot{}, domain.Sale{}, fmt.Errorf("market: buy day %d: %w: %v", day, domain.ErrPaymentFailed, err)
	}

	now := time.Now().UTC()
	m.slots[day].Owner = caller
	m.slots[day].UpdatedAt = now

	sale := domain.Sale{
		Day:        day,
		Kind:       domain.SaleKindAsk,
		Seller:     seller,
		Buyer:      caller,
		Amount:     price,
		OccurredAt: now,
	}
	return m.slots[day].Clone(), sale, nil
}

// PlaceBid replaces the slot's open bid with {caller, amount}. Anyone may
// call it; no tokens move and no balance or allowance check happens until
// the owner accepts.
func (m *Market) PlaceBid(day int, amount *big.Int, caller common.Address) (domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(day); err != nil {
		return domain.Slot{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.Slot{}, fmt.Errorf("market: day %d: bid amount must be a non-negative integer", day)
	}

	m.slots[day].Bid = &domain.Bid{
		Bidder: caller,
		Amount: new(big.Int).Set(amount),
	}
	m.slots[day].UpdatedAt = time.Now().UTC()
	return m.slots[day].Clone(), nil
}

// SellToBid accepts the slot's open bid: it transfers the bid amount from
// the bidder to the caller and, only when that payment succeeds, makes the
// bidder the new owner and clears the bid. A bid whose allowance lapsed
// since it was placed fails here with no state change.
func (m *Market) SellToBid(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.authorize(day, caller); err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}

	bid := m.slots[day].Bid
	if bid == nil {
		return domain.Slot{}, domain.Sale{}, fmt.Errorf("market: sell day %d: %w", day, domain.ErrNoBid)
	}

	amount := new(big.Int).Set(bid.Amount)
	if err := m.ledger.TransferFrom(ctx, bid.Bidder, caller, amount); err != nil {
		return domain.Slot{}, domain.Sale{}, fmt.Errorf("market: sell day %d: %w: %v", day, domain.ErrPaymentFailed, err)
	}

	now := time.Now().UTC()
	m.slots[day].Owner = bid.Bidder
	m.slots[day].Bid = nil
	m.slots[day].UpdatedAt = now

	sale := domain.Sale{
		Day:        day,
		Kind:       domain.SaleKindBid,
		Seller:     caller,
		Buyer:      bid.Bidder,
		Amount:     amount,
		OccurredAt: now,
	}
	return m.slots[day].Clone(), sale, nil
}

// check validates the day index against the arena bounds.
func (m *Market) check(day int) error {
	if day < 0 || day >= len(m.slots) {
		return fmt.Errorf("market: day %d: %w", day, domain.ErrOutOfRange)
	}
	return nil
}

// authorize validates the day index and that caller owns the slot.
func (m *Market) authorize(day int, caller common.Address) error {
	if err := m.check(day); err != nil {
		return err
	}
	if m.slots[day].Owner != caller {
		return fmt.Errorf("market: day %d: %w", day, domain.ErrUnauthorized)
	}
	return nil
}

// Package domain holds the core types of the day-slot ad marketplace and the
// interfaces its adapters (stores, caches, ledgers, blob storage) implement.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bid is the single outstanding offer on a day slot. Placing a new bid
// replaces the previous one; tokens move only when the owner accepts.
type Bid struct {
	Bidder common.Address `json:"bidder"`
	Amount *big.Int       `json:"amount"`
}

// Slot is one addressable unit of the marketplace: a calendar day with its
// own owner, display content, fixed ask price, and at most one open bid.
type Slot struct {
	Day        int            `json:"day"`
	Owner      common.Address `json:"owner"`
	AdURL      string         `json:"ad_url"`
	AdImageURL string         `json:"ad_image_url"`
	AskPrice   *big.Int       `json:"ask_price"`
	Bid        *Bid           `json:"bid,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// HasBid reports whether the slot carries an open bid.
func (s Slot) HasBid() bool {
	return s.Bid != nil
}

// Clone returns a deep copy so callers can hand out slot state without
// exposing the arena's internal big.Int values to mutation.
func (s Slot) Clone() Slot {
	out := s
	if s.AskPrice != nil {
		out.AskPrice = new(big.Int).Set(s.AskPrice)
	}
	if s.Bid != nil {
		b := Bid{Bidder: s.Bid.Bidder}
		if s.Bid.Amount != nil {
			b.Amount = new(big.Int).Set(s.Bid.Amount)
		}
		out.Bid = &b
	}
	return out
}

// SaleKind distinguishes how a slot changed hands.
type SaleKind string

const (
	// SaleKindAsk is a direct purchase at the owner's ask price.
	SaleKindAsk SaleKind = "ask"
	// SaleKindBid is an owner-accepted bid.
	SaleKindBid SaleKind = "bid"
)

// Sale is a completed, paid ownership transfer of a day slot.
type Sale struct {
	ID         string         `json:"id"`
	Day        int            `json:"day"`
	Kind       SaleKind       `json:"kind"`
	Seller     common.Address `json:"seller"`
	Buyer      common.Address `json:"buyer"`
	Amount     *big.Int       `json:"amount"`
	OccurredAt time.Time      `json:"occurred_at"`
}

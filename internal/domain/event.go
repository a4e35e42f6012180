package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a committed market state transition.
type EventType string

const (
	EventOwnerChanged EventType = "owner_changed"
	EventAdChanged    EventType = "ad_changed"
	EventAskChanged   EventType = "ask_changed"
	EventSlotSold     EventType = "slot_sold"
	EventBidPlaced    EventType = "bid_placed"
	EventBidAccepted  EventType = "bid_accepted"
)

// EventChannel is the pub/sub channel market events are published on.
const EventChannel = "slots"

// EventStream is the durable stream market events are appended to.
const EventStream = "stream:slots"

// MarketEvent is published on the signal bus after every committed
// transition, one event per mutation.
type MarketEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Day        int            `json:"day"`
	Caller     common.Address `json:"caller"`
	Owner      common.Address `json:"owner"`
	Amount     *big.Int       `json:"amount,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

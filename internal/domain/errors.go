package domain

import "errors"

var (
	// ErrOutOfRange is returned for any day index outside [0, N).
	ErrOutOfRange = errors.New("day index out of range")
	// ErrUnauthorized is returned when the caller is not the slot owner for
	// an owner-gated operation.
	ErrUnauthorized = errors.New("caller is not the slot owner")
	// ErrNoBid is returned by SellToBid when the slot has no open bid.
	ErrNoBid = errors.New("no open bid on slot")
	// ErrPaymentFailed is returned when the ledger rejects the token
	// transfer; the attempted slot mutation is rolled back entirely.
	ErrPaymentFailed = errors.New("token transfer rejected")

	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("lock already held")
	ErrRateLimited = errors.New("rate limited")
)

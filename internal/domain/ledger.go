package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger is the fungible-token accounting system used for all payments.
// The market only consumes this capability set; transfer and allowance
// bookkeeping behind it is assumed atomic per call.
type TokenLedger interface {
	// BalanceOf returns the token balance of account in base units.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	// Transfer moves amount from the ledger's own holder context to `to`.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error

	// TransferFrom moves amount from `from` to `to` on behalf of the
	// spender identified by the implementation. It fails when amount
	// exceeds either from's balance or the approved allowance.
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

package market

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/ledger"
)

var (
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	deployer   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	user       = common.HexToAddress("0x0000000000000000000000000000000000000002")
	bidBuyer   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

const (
	testDays    = 5
	defaultURL  = "test url"
	defaultImg  = "test image url"
	totalSupply = 1_000_000
)

// tokens converts a whole-token count to base units (18 decimals).
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestMarket(t *testing.T) (*Market, *ledger.Memory) {
	t.Helper()

	tok := ledger.NewMemory(deployer, tokens(totalSupply))
	m, err := New(Config{
		Ledger:            tok.Bind(marketAddr),
		Days:              testDays,
		Deployer:          deployer,
		DefaultAdURL:      defaultURL,
		DefaultAdImageURL: defaultImg,
		DefaultAskPrice:   tokens(1),
	})
	require.NoError(t, err)

	return m, tok
}

func TestNewValidation(t *testing.T) {
	tok := ledger.NewMemory(deployer, tokens(1))

	_, err := New(Config{Days: 5, DefaultAskPrice: tokens(1)})
	require.Error(t, err)

	_, err = New(Config{Ledger: tok.Bind(marketAddr), Days: 0, DefaultAskPrice: tokens(1)})
	require.Error(t, err)

	_, err = New(Config{Ledger: tok.Bind(marketAddr), Days: 5})
	require.Error(t, err)
}

func TestDefaultsAfterConstruction(t *testing.T) {
	m, _ := newTestMarket(t)
	require.Equal(t, testDays, m.Days())

	for day := 0; day < testDays; day++ {
		slot, err := m.Slot(day)
		require.NoError(t, err)
		require.Equal(t, deployer, slot.Owner)
		require.Equal(t, defaultURL, slot.AdURL)
		require.Equal(t, defaultImg, slot.AdImageURL)
		require.Zero(t, slot.AskPrice.Cmp(tokens(1)))
		require.False(t, slot.HasBid())
	}
}

func TestOutOfRange(t *testing.T) {
	m, _ := newTestMarket(t)
	ctx := context.Background()

	for _, day := range []int{-1, testDays, testDays + 10} {
		_, err := m.Slot(day)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, err = m.OwnerOf(day)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, err = m.SetOwner(day, user, deployer)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, err = m.SetContent(day, "u", "i", deployer)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, err = m.SetAskPrice(day, tokens(2), deployer)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, _, err = m.BuyFromAsk(ctx, day, user)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, err = m.PlaceBid(day, tokens(1), user)
		require.ErrorIs(t, err, domain.ErrOutOfRange)

		_, _, err = m.SellToBid(ctx, day, deployer)
		require.ErrorIs(t, err, domain.ErrOutOfRange)
	}
}

func TestSetOwner(t *testing.T) {
	m, _ := newTestMarket(t)

	owner, err := m.OwnerOf(0)
	require.NoError(t, err)
	require.Equal(t, deployer, owner)

	_, err = m.SetOwner(0, user, deployer)
	require.NoError(t, err)

	owner, err = m.OwnerOf(0)
	require.NoError(t, err)
	require.Equal(t, user, owner)

	// The old owner lost authority the moment ownership moved.
	_, err = m.SetOwner(0, deployer, deployer)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = m.SetOwner(0, deployer, user)
	require.NoError(t, err)
}

func TestSetOwnerUnauthorizedLeavesStateUnchanged(t *testing.T) {
	m, _ := newTestMarket(t)

	before, err := m.Slot(0)
	require.NoError(t, err)

	_, err = m.SetOwner(0, user, user)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	after, err := m.Slot(0)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSetContent(t *testing.T) {
	m, _ := newTestMarket(t)

	slot, err := m.SetContent(0, "new url", "new image url", deployer)
	require.NoError(t, err)
	require.Equal(t, "new url", slot.AdURL)
	require.Equal(t, "new image url", slot.AdImageURL)

	// Non-owner writes change nothing.
	_, err = m.SetContent(0, "", "", user)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	slot, err = m.Slot(0)
	require.NoError(t, err)
	require.Equal(t, "new url", slot.AdURL)
	require.Equal(t, "new image url", slot.AdImageURL)
}

func TestSetAskPrice(t *testing.T) {
	m, _ := newTestMarket(t)

	slot, err := m.SetAskPrice(0, tokens(100), deployer)
	require.NoError(t, err)
	require.Zero(t, slot.AskPrice.Cmp(tokens(100)))

	// Zero is legal and means free.
	slot, err = m.SetAskPrice(0, big.NewInt(0), deployer)
	require.NoError(t, err)
	require.Zero(t, slot.AskPrice.Sign())

	_, err = m.SetAskPrice(0, tokens(5), user)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = m.SetAskPrice(0, nil, deployer)
	require.Error(t, err)
}

func TestBuyFromAsk(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	require.NoError(t, tok.Bind(deployer).Transfer(ctx, user, tokens(1000)))
	_, err := m.SetAskPrice(0, tokens(100), deployer)
	require.NoError(t, err)

	// Without allowance the purchase is rejected and ownership stays put.
	_, _, err = m.BuyFromAsk(ctx, 0, user)
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	owner, err := m.OwnerOf(0)
	require.NoError(t, err)
	require.Equal(t, deployer, owner)

	tok.Approve(user, marketAddr, tokens(100))

	sellerBefore, err := tok.BalanceOf(ctx, deployer)
	require.NoError(t, err)

	slot, sale, err := m.BuyFromAsk(ctx, 0, user)
	require.NoError(t, err)
	require.Equal(t, user, slot.Owner)
	require.Equal(t, domain.SaleKindAsk, sale.Kind)
	require.Equal(t, deployer, sale.Seller)
	require.Equal(t, user, sale.Buyer)
	require.Zero(t, sale.Amount.Cmp(tokens(100)))

	// The successor inherits the previous owner's ask price as-is.
	require.Zero(t, slot.AskPrice.Cmp(tokens(100)))

	userBal, err := tok.BalanceOf(ctx, user)
	require.NoError(t, err)
	require.Zero(t, userBal.Cmp(tokens(900)))

	sellerAfter, err := tok.BalanceOf(ctx, deployer)
	require.NoError(t, err)
	require.Zero(t, new(big.Int).Sub(sellerAfter, sellerBefore).Cmp(tokens(100)))
}

func TestBuyFromAskInsufficientBalance(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	_, err := m.SetAskPrice(0, tokens(100), deployer)
	require.NoError(t, err)

	// Approved but broke: the allowance check passes, the balance check
	// rejects, and the slot stays with its owner.
	tok.Approve(user, marketAddr, tokens(100))

	_, _, err = m.BuyFromAsk(ctx, 0, user)
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	owner, err := m.OwnerOf(0)
	require.NoError(t, err)
	require.Equal(t, deployer, owner)
}

func TestPlaceBidReplacesPrior(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	slot, err := m.PlaceBid(0, tokens(10), user)
	require.NoError(t, err)
	require.True(t, slot.HasBid())
	require.Equal(t, user, slot.Bid.Bidder)

	slot, err = m.PlaceBid(0, tokens(25), bidBuyer)
	require.NoError(t, err)
	require.Equal(t, bidBuyer, slot.Bid.Bidder)
	require.Zero(t, slot.Bid.Amount.Cmp(tokens(25)))

	// Bidding never moves tokens.
	bal, err := tok.BalanceOf(ctx, deployer)
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(tokens(totalSupply)))
}

func TestSellToBid(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	// No bid yet.
	_, _, err := m.SellToBid(ctx, 0, deployer)
	require.ErrorIs(t, err, domain.ErrNoBid)

	require.NoError(t, tok.Bind(deployer).Transfer(ctx, bidBuyer, tokens(1000)))
	tok.Approve(bidBuyer, marketAddr, tokens(50))

	_, err = m.PlaceBid(0, tokens(50), bidBuyer)
	require.NoError(t, err)

	// Only the owner may accept.
	_, _, err = m.SellToBid(ctx, 0, bidBuyer)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	slot, sale, err := m.SellToBid(ctx, 0, deployer)
	require.NoError(t, err)
	require.Equal(t, bidBuyer, slot.Owner)
	require.False(t, slot.HasBid())
	require.Equal(t, domain.SaleKindBid, sale.Kind)
	require.Zero(t, sale.Amount.Cmp(tokens(50)))

	bal, err := tok.BalanceOf(ctx, bidBuyer)
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(tokens(950)))
}

func TestSellToBidLapsedAllowance(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	require.NoError(t, tok.Bind(deployer).Transfer(ctx, bidBuyer, tokens(1000)))

	// The bid is accepted without any upfront allowance check, so payment
	// can fail at acceptance time.
	_, err := m.PlaceBid(0, tokens(50), bidBuyer)
	require.NoError(t, err)

	before, err := m.Slot(0)
	require.NoError(t, err)

	_, _, err = m.SellToBid(ctx, 0, deployer)
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	// Full rollback: owner unchanged, bid still open.
	after, err := m.Slot(0)
	require.NoError(t, err)
	require.Equal(t, before.Owner, after.Owner)
	require.True(t, after.HasBid())
}

// TestMarketplaceWalkthrough mirrors the end-to-end scenario: a direct sale
// at a raised ask price, an administrative handoff, and an accepted bid.
func TestMarketplaceWalkthrough(t *testing.T) {
	m, tok := newTestMarket(t)
	ctx := context.Background()

	require.NoError(t, tok.Bind(deployer).Transfer(ctx, user, tokens(1000)))
	require.NoError(t, tok.Bind(deployer).Transfer(ctx, bidBuyer, tokens(1000)))

	// Deployer raises the ask on day 0 from the default to 100 tokens.
	_, err := m.SetAskPrice(0, tokens(100), deployer)
	require.NoError(t, err)

	deployerBefore, err := tok.BalanceOf(ctx, deployer)
	require.NoError(t, err)

	// User approves the market and buys day 0 outright.
	tok.Approve(user, marketAddr, tokens(100))
	slot, _, err := m.BuyFromAsk(ctx, 0, user)
	require.NoError(t, err)
	require.Equal(t, user, slot.Owner)

	userBal, err := tok.BalanceOf(ctx, user)
	require.NoError(t, err)
	require.Zero(t, userBal.Cmp(tokens(900)))

	deployerAfter, err := tok.BalanceOf(ctx, deployer)
	require.NoError(t, err)
	require.Zero(t, new(big.Int).Sub(deployerAfter, deployerBefore).Cmp(tokens(100)))

	// Administrative handoffs: back to the deployer, then on to the seller.
	_, err = m.SetOwner(0, deployer, user)
	require.NoError(t, err)
	_, err = m.SetOwner(0, seller, deployer)
	require.NoError(t, err)

	// BidBuyer approves 50 tokens and bids; the seller accepts.
	tok.Approve(bidBuyer, marketAddr, tokens(50))
	_, err = m.PlaceBid(0, tokens(50), bidBuyer)
	require.NoError(t, err)

	slot, _, err = m.SellToBid(ctx, 0, seller)
	require.NoError(t, err)
	require.Equal(t, bidBuyer, slot.Owner)

	sellerBal, err := tok.BalanceOf(ctx, seller)
	require.NoError(t, err)
	require.Zero(t, sellerBal.Cmp(tokens(50)))

	buyerBal, err := tok.BalanceOf(ctx, bidBuyer)
	require.NoError(t, err)
	require.Zero(t, buyerBal.Cmp(tokens(950)))
}

func TestSnapshotAndRestore(t *testing.T) {
	m, tok := newTestMarket(t)

	_, err := m.SetContent(2, "u2", "i2", deployer)
	require.NoError(t, err)
	_, err = m.SetOwner(3, user, deployer)
	require.NoError(t, err)
	_, err = m.PlaceBid(4, tokens(7), bidBuyer)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, testDays)

	fresh, err := New(Config{
		Ledger:            tok.Bind(marketAddr),
		Days:              testDays,
		Deployer:          deployer,
		DefaultAdURL:      defaultURL,
		DefaultAdImageURL: defaultImg,
		DefaultAskPrice:   tokens(1),
	})
	require.NoError(t, err)
	fresh.Restore(snap)

	for day := 0; day < testDays; day++ {
		want, err := m.Slot(day)
		require.NoError(t, err)
		got, err := fresh.Slot(day)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

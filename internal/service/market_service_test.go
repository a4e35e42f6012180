package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/ledger"
	"github.com/adcal/slotmarket/internal/market"
)

var (
	svcMarketAddr = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	svcDeployer   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	svcBuyer      = common.HexToAddress("0x0000000000000000000000000000000000000012")
	svcBidder     = common.HexToAddress("0x0000000000000000000000000000000000000013")
)

func svcTokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fakeSlotStore struct {
	saved  []domain.Slot
	seeded []domain.Slot
	listed []domain.Slot
}

func (f *fakeSlotStore) Save(_ context.Context, slot domain.Slot) error {
	f.saved = append(f.saved, slot)
	return nil
}

func (f *fakeSlotStore) SaveAll(_ context.Context, slots []domain.Slot) error {
	f.seeded = slots
	return nil
}

func (f *fakeSlotStore) Get(_ context.Context, day int) (domain.Slot, error) {
	for _, s := range f.listed {
		if s.Day == day {
			return s, nil
		}
	}
	return domain.Slot{}, domain.ErrNotFound
}

func (f *fakeSlotStore) List(_ context.Context) ([]domain.Slot, error) {
	return f.listed, nil
}

func (f *fakeSlotStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.listed)), nil
}

type fakeSaleStore struct {
	inserted []domain.Sale
}

func (f *fakeSaleStore) Insert(_ context.Context, sale domain.Sale) error {
	f.inserted = append(f.inserted, sale)
	return nil
}

func (f *fakeSaleStore) GetByID(_ context.Context, id string) (domain.Sale, error) {
	for _, s := range f.inserted {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Sale{}, domain.ErrNotFound
}

func (f *fakeSaleStore) ListByDay(_ context.Context, day int, _ domain.ListOpts) ([]domain.Sale, error) {
	var out []domain.Sale
	for _, s := range f.inserted {
		if s.Day == day {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSaleStore) ListRecent(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit > len(f.inserted) {
		limit = len(f.inserted)
	}
	return f.inserted[len(f.inserted)-limit:], nil
}

func (f *fakeSaleStore) ListBefore(_ context.Context, _ time.Time) ([]domain.Sale, error) {
	return f.inserted, nil
}

type fakeAuditStore struct {
	events []string
}

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAuditStore) ListBefore(_ context.Context, _ time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeCache struct {
	slots map[int]domain.Slot
}

func newFakeCache() *fakeCache {
	return &fakeCache{slots: make(map[int]domain.Slot)}
}

func (f *fakeCache) Set(_ context.Context, slot domain.Slot) error {
	f.slots[slot.Day] = slot
	return nil
}

func (f *fakeCache) Get(_ context.Context, day int) (domain.Slot, error) {
	slot, ok := f.slots[day]
	if !ok {
		return domain.Slot{}, domain.ErrNotFound
	}
	return slot, nil
}

func (f *fakeCache) Invalidate(_ context.Context, day int) error {
	delete(f.slots, day)
	return nil
}

type fakeBus struct {
	published [][]byte
	appended  [][]byte
}

func (f *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeBus) StreamRead(_ context.Context, _, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeLocks struct {
	acquired []string
	released int
	err      error
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

type svcFixture struct {
	svc      *MarketService
	arena    *market.Market
	token    *ledger.Memory
	slots    *fakeSlotStore
	sales    *fakeSaleStore
	audit    *fakeAuditStore
	cache    *fakeCache
	bus      *fakeBus
	locks    *fakeLocks
	notifier *fakeNotifier
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()

	tok := ledger.NewMemory(svcDeployer, svcTokens(1_000_000))
	arena, err := market.New(market.Config{
		Ledger:            tok.Bind(svcMarketAddr),
		Days:              5,
		Deployer:          svcDeployer,
		DefaultAdURL:      "url",
		DefaultAdImageURL: "img",
		DefaultAskPrice:   svcTokens(1),
	})
	require.NoError(t, err)

	f := &svcFixture{
		arena:    arena,
		token:    tok,
		slots:    &fakeSlotStore{},
		sales:    &fakeSaleStore{},
		audit:    &fakeAuditStore{},
		cache:    newFakeCache(),
		bus:      &fakeBus{},
		locks:    &fakeLocks{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewMarketService(MarketServiceDeps{
		Arena:    arena,
		Ledger:   tok.Bind(svcMarketAddr),
		Slots:    f.slots,
		Sales:    f.sales,
		Audit:    f.audit,
		Cache:    f.cache,
		Bus:      f.bus,
		Locks:    f.locks,
		Notifier: f.notifier,
		Logger:   slog.New(slog.DiscardHandler),
	})
	return f
}

func TestGetSlotCacheMissBackfills(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	slot, err := f.svc.GetSlot(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, svcDeployer, slot.Owner)

	cached, err := f.cache.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, slot.Day, cached.Day)
}

func TestGetSlotPrefersCache(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	stale := domain.Slot{Day: 1, Owner: svcBuyer, AdURL: "cached"}
	require.NoError(t, f.cache.Set(ctx, stale))

	slot, err := f.svc.GetSlot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "cached", slot.AdURL)
}

func TestGetSlotOutOfRange(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.svc.GetSlot(context.Background(), 99)
	require.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestSetContentWriteBehind(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	slot, err := f.svc.SetContent(ctx, 0, "new url", "new img", svcDeployer)
	require.NoError(t, err)
	require.Equal(t, "new url", slot.AdURL)

	require.Len(t, f.slots.saved, 1)
	require.Equal(t, "new url", f.slots.saved[0].AdURL)
	require.Equal(t, []string{"slot:0"}, f.locks.acquired)
	require.Equal(t, 1, f.locks.released)
	require.Equal(t, []string{string(domain.EventAdChanged)}, f.audit.events)
	require.Len(t, f.bus.published, 1)
	require.Len(t, f.bus.appended, 1)

	var event domain.MarketEvent
	require.NoError(t, json.Unmarshal(f.bus.published[0], &event))
	require.Equal(t, domain.EventAdChanged, event.Type)
	require.Equal(t, 0, event.Day)
	require.NotEmpty(t, event.ID)

	cached, err := f.cache.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "new url", cached.AdURL)
}

func TestSetContentUnauthorizedSkipsWriteBehind(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.svc.SetContent(context.Background(), 0, "u", "i", svcBuyer)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Empty(t, f.slots.saved)
	require.Empty(t, f.bus.published)
	require.Equal(t, 1, f.locks.released)
}

func TestLockFailureBlocksMutation(t *testing.T) {
	f := newSvcFixture(t)
	f.locks.err = domain.ErrLockHeld

	_, err := f.svc.SetAskPrice(context.Background(), 0, svcTokens(2), svcDeployer)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Empty(t, f.slots.saved)
}

func TestBuyFromAskRecordsSaleAndNotifies(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	require.NoError(t, f.token.Bind(svcDeployer).Transfer(ctx, svcBuyer, svcTokens(10)))
	f.token.Approve(svcBuyer, svcMarketAddr, svcTokens(10))

	slot, sale, err := f.svc.BuyFromAsk(ctx, 3, svcBuyer)
	require.NoError(t, err)
	require.Equal(t, svcBuyer, slot.Owner)
	require.NotEmpty(t, sale.ID)
	require.Equal(t, domain.SaleKindAsk, sale.Kind)

	require.Len(t, f.sales.inserted, 1)
	require.Equal(t, sale.ID, f.sales.inserted[0].ID)
	require.Equal(t, []string{"slot_sold"}, f.notifier.events)

	var event domain.MarketEvent
	require.NoError(t, json.Unmarshal(f.bus.published[0], &event))
	require.Equal(t, sale.ID, event.ID)
	require.Equal(t, domain.EventSlotSold, event.Type)
}

func TestSellToBidRecordsSaleAndNotifies(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	require.NoError(t, f.token.Bind(svcDeployer).Transfer(ctx, svcBidder, svcTokens(10)))
	f.token.Approve(svcBidder, svcMarketAddr, svcTokens(10))

	_, err := f.svc.PlaceBid(ctx, 4, svcTokens(3), svcBidder)
	require.NoError(t, err)
	require.Equal(t, []string{string(domain.EventBidPlaced)}, f.audit.events)

	slot, sale, err := f.svc.SellToBid(ctx, 4, svcDeployer)
	require.NoError(t, err)
	require.Equal(t, svcBidder, slot.Owner)
	require.Nil(t, slot.Bid)
	require.Equal(t, domain.SaleKindBid, sale.Kind)
	require.Equal(t, []string{"bid_accepted"}, f.notifier.events)

	bal, err := f.svc.BalanceOf(ctx, svcDeployer)
	require.NoError(t, err)
	require.Equal(t, svcTokens(1_000_000-10+3), bal)
}

func TestSellToBidNoBid(t *testing.T) {
	f := newSvcFixture(t)

	_, _, err := f.svc.SellToBid(context.Background(), 0, svcDeployer)
	require.ErrorIs(t, err, domain.ErrNoBid)
	require.Empty(t, f.sales.inserted)
	require.Empty(t, f.notifier.events)
}

func TestListSalesNilStore(t *testing.T) {
	tok := ledger.NewMemory(svcDeployer, svcTokens(1))
	arena, err := market.New(market.Config{
		Ledger:            tok.Bind(svcMarketAddr),
		Days:              2,
		Deployer:          svcDeployer,
		DefaultAdURL:      "url",
		DefaultAdImageURL: "img",
		DefaultAskPrice:   svcTokens(1),
	})
	require.NoError(t, err)

	svc := NewMarketService(MarketServiceDeps{
		Arena:  arena,
		Ledger: tok.Bind(svcMarketAddr),
		Logger: slog.New(slog.DiscardHandler),
	})

	sales, err := svc.ListRecentSales(context.Background(), 10)
	require.NoError(t, err)
	require.Nil(t, sales)

	// Without a lock manager mutations still go through.
	_, err = svc.SetAskPrice(context.Background(), 0, svcTokens(2), svcDeployer)
	require.NoError(t, err)
}

func TestRestoreFromStoreSeedsEmptyStore(t *testing.T) {
	f := newSvcFixture(t)

	require.NoError(t, f.svc.RestoreFromStore(context.Background()))
	require.Len(t, f.slots.seeded, 5)
}

func TestRestoreFromStoreLoadsPersisted(t *testing.T) {
	f := newSvcFixture(t)
	f.slots.listed = []domain.Slot{{
		Day:      1,
		Owner:    svcBuyer,
		AdURL:    "persisted",
		AskPrice: svcTokens(7),
	}}

	require.NoError(t, f.svc.RestoreFromStore(context.Background()))

	slot, err := f.arena.Slot(1)
	require.NoError(t, err)
	require.Equal(t, svcBuyer, slot.Owner)
	require.Equal(t, "persisted", slot.AdURL)
	require.Empty(t, f.slots.seeded)
}

func TestRestoreFromStoreNilStore(t *testing.T) {
	tok := ledger.NewMemory(svcDeployer, svcTokens(1))
	arena, err := market.New(market.Config{
		Ledger:            tok.Bind(svcMarketAddr),
		Days:              2,
		Deployer:          svcDeployer,
		DefaultAdURL:      "url",
		DefaultAdImageURL: "img",
		DefaultAskPrice:   svcTokens(1),
	})
	require.NoError(t, err)

	svc := NewMarketService(MarketServiceDeps{
		Arena:  arena,
		Ledger: tok.Bind(svcMarketAddr),
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, svc.RestoreFromStore(context.Background()))
}

func TestPlaceBidReplacesPrevious(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceBid(ctx, 2, svcTokens(1), svcBuyer)
	require.NoError(t, err)
	slot, err := f.svc.PlaceBid(ctx, 2, svcTokens(2), svcBidder)
	require.NoError(t, err)

	require.NotNil(t, slot.Bid)
	require.Equal(t, svcBidder, slot.Bid.Bidder)
	require.Equal(t, svcTokens(2), slot.Bid.Amount)
	require.Len(t, f.bus.published, 2)
}

func TestBuyFromAskPaymentFailure(t *testing.T) {
	f := newSvcFixture(t)

	// Buyer has no allowance, so the transfer is refused.
	_, _, err := f.svc.BuyFromAsk(context.Background(), 0, svcBuyer)
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	require.Empty(t, f.sales.inserted)
	require.Empty(t, f.slots.saved)
	require.True(t, errors.Is(err, domain.ErrPaymentFailed))
}

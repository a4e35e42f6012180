// Package service orchestrates the slot arena with its persistence, cache,
// event, and notification collaborators.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/market"
)

// lockTTL bounds how long a per-day mutation lock may be held before Redis
// expires it.
const lockTTL = 10 * time.Second

// EventNotifier forwards selected market events to operator channels.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MarketService wraps the slot arena with write-behind persistence, cache
// maintenance, event publication, audit logging, and operator notifications.
// Every collaborator except the arena and the ledger is optional; a nil
// collaborator disables that concern, which is how standalone mode runs.
type MarketService struct {
	arena  *market.Market
	ledger domain.TokenLedger

	slots    domain.SlotStore
	sales    domain.SaleStore
	audit    domain.AuditStore
	cache    domain.SlotCache
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier EventNotifier

	logger *slog.Logger
}

// MarketServiceDeps collects the collaborators of a MarketService.
type MarketServiceDeps struct {
	Arena    *market.Market
	Ledger   domain.TokenLedger
	Slots    domain.SlotStore
	Sales    domain.SaleStore
	Audit    domain.AuditStore
	Cache    domain.SlotCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Notifier EventNotifier
	Logger   *slog.Logger
}

// NewMarketService creates a MarketService from its dependencies.
func NewMarketService(deps MarketServiceDeps) *MarketService {
	return &MarketService{
		arena:    deps.Arena,
		ledger:   deps.Ledger,
		slots:    deps.Slots,
		sales:    deps.Sales,
		audit:    deps.Audit,
		cache:    deps.Cache,
		bus:      deps.Bus,
		locks:    deps.Locks,
		notifier: deps.Notifier,
		logger:   deps.Logger.With(slog.String("component", "market_service")),
	}
}

// Days returns the number of slots in the arena.
func (s *MarketService) Days() int {
	return s.arena.Days()
}

// CurrentDay maps a wall-clock instant to a slot index, false when the
// instant falls outside the arena's calendar window.
func (s *MarketService) CurrentDay(now time.Time) (int, bool) {
	return s.arena.CurrentDay(now)
}

// GetSlot retrieves a slot, checking the cache first and falling back to the
// arena on a miss.
func (s *MarketService) GetSlot(ctx context.Context, day int) (domain.Slot, error) {
	if s.cache != nil {
		if slot, err := s.cache.Get(ctx, day); err == nil {
			return slot, nil
		}
	}

	slot, err := s.arena.Slot(day)
	if err != nil {
		return domain.Slot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, slot); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Int("day", day),
				slog.String("error", err.Error()),
			)
		}
	}
	return slot, nil
}

// ListSlots returns a copy of every slot in day order.
func (s *MarketService) ListSlots(ctx context.Context) ([]domain.Slot, error) {
	return s.arena.Snapshot(), nil
}

// OwnerOf returns the current owner of a slot.
func (s *MarketService) OwnerOf(ctx context.Context, day int) (common.Address, error) {
	return s.arena.OwnerOf(day)
}

// BalanceOf returns an account's ledger balance.
func (s *MarketService) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return s.ledger.BalanceOf(ctx, account)
}

// SetOwner reassigns a slot to newOwner without payment. Only the current
// owner may call it.
func (s *MarketService) SetOwner(ctx context.Context, day int, newOwner, caller common.Address) (domain.Slot, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, err
	}
	defer unlock()

	slot, err := s.arena.SetOwner(day, newOwner, caller)
	if err != nil {
		return domain.Slot{}, err
	}

	s.committed(ctx, slot, domain.MarketEvent{
		Type:   domain.EventOwnerChanged,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
	}, map[string]any{
		"day":       day,
		"caller":    caller.Hex(),
		"new_owner": newOwner.Hex(),
	})
	return slot, nil
}

// SetContent replaces a slot's display strings. Only the current owner may
// call it.
func (s *MarketService) SetContent(ctx context.Context, day int, url, imageURL string, caller common.Address) (domain.Slot, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, err
	}
	defer unlock()

	slot, err := s.arena.SetContent(day, url, imageURL, caller)
	if err != nil {
		return domain.Slot{}, err
	}

	s.committed(ctx, slot, domain.MarketEvent{
		Type:   domain.EventAdChanged,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
	}, map[string]any{
		"day":          day,
		"caller":       caller.Hex(),
		"ad_url":       url,
		"ad_image_url": imageURL,
	})
	return slot, nil
}

// SetAskPrice replaces a slot's ask price. Only the current owner may call
// it.
func (s *MarketService) SetAskPrice(ctx context.Context, day int, price *big.Int, caller common.Address) (domain.Slot, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, err
	}
	defer unlock()

	slot, err := s.arena.SetAskPrice(day, price, caller)
	if err != nil {
		return domain.Slot{}, err
	}

	s.committed(ctx, slot, domain.MarketEvent{
		Type:   domain.EventAskChanged,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
		Amount: slot.AskPrice,
	}, map[string]any{
		"day":       day,
		"caller":    caller.Hex(),
		"ask_price": price.String(),
	})
	return slot, nil
}

// BuyFromAsk purchases a slot at its ask price on behalf of caller.
func (s *MarketService) BuyFromAsk(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}
	defer unlock()

	slot, sale, err := s.arena.BuyFromAsk(ctx, day, caller)
	if err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}
	sale.ID = uuid.New().String()

	s.recordSale(ctx, sale)
	s.committed(ctx, slot, domain.MarketEvent{
		ID:     sale.ID,
		Type:   domain.EventSlotSold,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
		Amount: sale.Amount,
	}, map[string]any{
		"day":    day,
		"kind":   string(sale.Kind),
		"seller": sale.Seller.Hex(),
		"buyer":  sale.Buyer.Hex(),
		"amount": sale.Amount.String(),
	})
	s.notify(ctx, "slot_sold", "Slot sold",
		fmt.Sprintf("Day %d sold to %s for %s at the ask price", day, sale.Buyer.Hex(), sale.Amount.String()))
	return slot, sale, nil
}

// PlaceBid records an open bid on a slot. No tokens move until the owner
// accepts.
func (s *MarketService) PlaceBid(ctx context.Context, day int, amount *big.Int, caller common.Address) (domain.Slot, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, err
	}
	defer unlock()

	slot, err := s.arena.PlaceBid(day, amount, caller)
	if err != nil {
		return domain.Slot{}, err
	}

	s.committed(ctx, slot, domain.MarketEvent{
		Type:   domain.EventBidPlaced,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
		Amount: amount,
	}, map[string]any{
		"day":    day,
		"bidder": caller.Hex(),
		"amount": amount.String(),
	})
	return slot, nil
}

// SellToBid accepts a slot's open bid on behalf of the owner.
func (s *MarketService) SellToBid(ctx context.Context, day int, caller common.Address) (domain.Slot, domain.Sale, error) {
	unlock, err := s.lockDay(ctx, day)
	if err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}
	defer unlock()

	slot, sale, err := s.arena.SellToBid(ctx, day, caller)
	if err != nil {
		return domain.Slot{}, domain.Sale{}, err
	}
	sale.ID = uuid.New().String()

	s.recordSale(ctx, sale)
	s.committed(ctx, slot, domain.MarketEvent{
		ID:     sale.ID,
		Type:   domain.EventBidAccepted,
		Day:    day,
		Caller: caller,
		Owner:  slot.Owner,
		Amount: sale.Amount,
	}, map[string]any{
		"day":    day,
		"kind":   string(sale.Kind),
		"seller": sale.Seller.Hex(),
		"buyer":  sale.Buyer.Hex(),
		"amount": sale.Amount.String(),
	})
	s.notify(ctx, "bid_accepted", "Bid accepted",
		fmt.Sprintf("Day %d sold to bidder %s for %s", day, sale.Buyer.Hex(), sale.Amount.String()))
	return slot, sale, nil
}

// ListSalesByDay returns persisted sales for one day, newest first.
func (s *MarketService) ListSalesByDay(ctx context.Context, day int, opts domain.ListOpts) ([]domain.Sale, error) {
	if s.sales == nil {
		return nil, nil
	}
	return s.sales.ListByDay(ctx, day, opts)
}

// ListRecentSales returns the most recent persisted sales across all days.
func (s *MarketService) ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if s.sales == nil {
		return nil, nil
	}
	return s.sales.ListRecent(ctx, limit)
}

// RestoreFromStore loads persisted slot state into the arena. Called once at
// startup so ownership survives restarts.
func (s *MarketService) RestoreFromStore(ctx context.Context) error {
	if s.slots == nil {
		return nil
	}

	persisted, err := s.slots.List(ctx)
	if err != nil {
		return fmt.Errorf("market_service: restore: %w", err)
	}
	if len(persisted) == 0 {
		// First boot: persist the freshly constructed arena instead.
		if err := s.slots.SaveAll(ctx, s.arena.Snapshot()); err != nil {
			return fmt.Errorf("market_service: seed store: %w", err)
		}
		s.logger.InfoContext(ctx, "seeded slot store", slog.Int("days", s.arena.Days()))
		return nil
	}

	s.arena.Restore(persisted)
	s.logger.InfoContext(ctx, "restored slots from store", slog.Int("count", len(persisted)))
	return nil
}

// lockDay takes the per-day distributed lock when a lock manager is
// configured. The arena's own mutex still serializes mutations within this
// process; the distributed lock covers instances sharing one database.
func (s *MarketService) lockDay(ctx context.Context, day int) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}

	unlock, err := s.locks.Acquire(ctx, "slot:"+strconv.Itoa(day), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: lock day %d: %w", day, err)
	}
	return unlock, nil
}

// committed runs the write-behind bookkeeping for a committed transition:
// slot persistence, cache refresh, audit log, and event publication. Failures
// here are logged, never surfaced; the in-memory transition already happened.
func (s *MarketService) committed(ctx context.Context, slot domain.Slot, event domain.MarketEvent, detail map[string]any) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.OccurredAt = slot.UpdatedAt

	if s.slots != nil {
		if err := s.slots.Save(ctx, slot); err != nil {
			s.logger.ErrorContext(ctx, "slot persist failed",
				slog.Int("day", slot.Day),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, slot); err != nil {
			s.logger.WarnContext(ctx, "cache refresh failed",
				slog.Int("day", slot.Day),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, string(event.Type), detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", string(event.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, event)
}

// recordSale persists a completed sale.
func (s *MarketService) recordSale(ctx context.Context, sale domain.Sale) {
	if s.sales == nil {
		return
	}
	if err := s.sales.Insert(ctx, sale); err != nil {
		s.logger.ErrorContext(ctx, "sale persist failed",
			slog.String("sale_id", sale.ID),
			slog.Int("day", sale.Day),
			slog.String("error", err.Error()),
		)
	}
}

// publish sends the event to the pub/sub channel and appends it to the
// durable stream.
func (s *MarketService) publish(ctx context.Context, event domain.MarketEvent) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "event marshal failed",
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// notify forwards an operator notification when a notifier is configured.
func (s *MarketService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

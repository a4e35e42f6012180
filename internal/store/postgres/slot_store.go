package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adcal/slotmarket/internal/domain"
)

// SlotStore persists day slots. Amounts are stored as decimal strings so that
// 256-bit token values round-trip without loss.
type SlotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SlotStore = (*SlotStore)(nil)

// NewSlotStore creates a SlotStore backed by the given client.
func NewSlotStore(client *Client) *SlotStore {
	return &SlotStore{pool: client.Pool()}
}

const upsertSlotSQL = `
	INSERT INTO slots (day, owner_address, ad_url, ad_image_url, ask_price, bid_bidder, bid_amount, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (day) DO UPDATE SET
		owner_address = EXCLUDED.owner_address,
		ad_url = EXCLUDED.ad_url,
		ad_image_url = EXCLUDED.ad_image_url,
		ask_price = EXCLUDED.ask_price,
		bid_bidder = EXCLUDED.bid_bidder,
		bid_amount = EXCLUDED.bid_amount,
		updated_at = EXCLUDED.updated_at`

// Save upserts a single slot row keyed by day.
func (s *SlotStore) Save(ctx context.Context, slot domain.Slot) error {
	bidder, bidAmount := bidColumns(slot)
	_, err := s.pool.Exec(ctx, upsertSlotSQL,
		slot.Day,
		slot.Owner.Hex(),
		slot.AdURL,
		slot.AdImageURL,
		amountText(slot.AskPrice),
		bidder,
		bidAmount,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save slot %d: %w", slot.Day, err)
	}
	return nil
}

// SaveAll upserts all given slots in one transaction.
func (s *SlotStore) SaveAll(ctx context.Context, slots []domain.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save all slots: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, slot := range slots {
		bidder, bidAmount := bidColumns(slot)
		if _, err := tx.Exec(ctx, upsertSlotSQL,
			slot.Day,
			slot.Owner.Hex(),
			slot.AdURL,
			slot.AdImageURL,
			amountText(slot.AskPrice),
			bidder,
			bidAmount,
			slot.UpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: save slot %d: %w", slot.Day, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save all slots: %w", err)
	}
	return nil
}

// Get returns the slot for the given day.
func (s *SlotStore) Get(ctx context.Context, day int) (domain.Slot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT day, owner_address, ad_url, ad_image_url, ask_price, bid_bidder, bid_amount, updated_at
		FROM slots WHERE day = $1`, day)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Slot{}, fmt.Errorf("postgres: slot %d: %w", day, domain.ErrNotFound)
		}
		return domain.Slot{}, fmt.Errorf("postgres: get slot %d: %w", day, err)
	}
	return slot, nil
}

// List returns every slot ordered by day.
func (s *SlotStore) List(ctx context.Context) ([]domain.Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day, owner_address, ad_url, ad_image_url, ask_price, bid_bidder, bid_amount, updated_at
		FROM slots ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate slots: %w", err)
	}
	return slots, nil
}

// Count returns the number of persisted slots.
func (s *SlotStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM slots").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count slots: %w", err)
	}
	return count, nil
}

func bidColumns(slot domain.Slot) (*string, *string) {
	if slot.Bid == nil {
		return nil, nil
	}
	bidder := slot.Bid.Bidder.Hex()
	amount := amountText(slot.Bid.Amount)
	return &bidder, &amount
}

func scanSlot(row pgx.Row) (domain.Slot, error) {
	var (
		slot      domain.Slot
		owner     string
		ask       string
		bidder    *string
		bidAmount *string
	)
	err := row.Scan(&slot.Day, &owner, &slot.AdURL, &slot.AdImageURL, &ask, &bidder, &bidAmount, &slot.UpdatedAt)
	if err != nil {
		return domain.Slot{}, err
	}

	slot.Owner = common.HexToAddress(owner)
	slot.AskPrice, err = parseAmount(ask)
	if err != nil {
		return domain.Slot{}, err
	}

	if bidder != nil && bidAmount != nil {
		amount, err := parseAmount(*bidAmount)
		if err != nil {
			return domain.Slot{}, err
		}
		slot.Bid = &domain.Bid{Bidder: common.HexToAddress(*bidder), Amount: amount}
	}
	return slot, nil
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}

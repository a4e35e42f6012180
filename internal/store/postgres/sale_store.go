package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adcal/slotmarket/internal/domain"
)

// SaleStore persists completed slot sales.
type SaleStore struct {
	pool *pgxpool.Pool
}

var _ domain.SaleStore = (*SaleStore)(nil)

// NewSaleStore creates a SaleStore backed by the given client.
func NewSaleStore(client *Client) *SaleStore {
	return &SaleStore{pool: client.Pool()}
}

// Insert stores a sale, assigning an ID when the caller did not set one.
func (s *SaleStore) Insert(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if sale.OccurredAt.IsZero() {
		sale.OccurredAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sales (id, day, kind, seller_address, buyer_address, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID,
		sale.Day,
		string(sale.Kind),
		sale.Seller.Hex(),
		sale.Buyer.Hex(),
		amountText(sale.Amount),
		sale.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert sale: %w", err)
	}
	return nil
}

const selectSaleSQL = `
	SELECT id, day, kind, seller_address, buyer_address, amount, occurred_at
	FROM sales`

// GetByID returns a single sale by its ID.
func (s *SaleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	row := s.pool.QueryRow(ctx, selectSaleSQL+" WHERE id = $1", id)

	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("postgres: sale %s: %w", id, domain.ErrNotFound)
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %s: %w", id, err)
	}
	return sale, nil
}

// ListByDay returns sales for a single day, newest first.
func (s *SaleStore) ListByDay(ctx context.Context, day int, opts domain.ListOpts) ([]domain.Sale, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		selectSaleSQL+" WHERE day = $1 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3",
		day, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales for day %d: %w", day, err)
	}
	defer rows.Close()

	return collectSales(rows)
}

// ListRecent returns the most recent sales across all days.
func (s *SaleStore) ListRecent(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		selectSaleSQL+" ORDER BY occurred_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent sales: %w", err)
	}
	defer rows.Close()

	return collectSales(rows)
}

// ListBefore returns all sales that occurred before the cutoff, oldest first,
// for archival.
func (s *SaleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Sale, error) {
	rows, err := s.pool.Query(ctx,
		selectSaleSQL+" WHERE occurred_at < $1 ORDER BY occurred_at ASC", before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales before %s: %w", before, err)
	}
	defer rows.Close()

	return collectSales(rows)
}

func collectSales(rows pgx.Rows) ([]domain.Sale, error) {
	var sales []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate sales: %w", err)
	}
	return sales, nil
}

func scanSale(row pgx.Row) (domain.Sale, error) {
	var (
		sale   domain.Sale
		kind   string
		seller string
		buyer  string
		amount string
	)
	err := row.Scan(&sale.ID, &sale.Day, &kind, &seller, &buyer, &amount, &sale.OccurredAt)
	if err != nil {
		return domain.Sale{}, err
	}

	sale.Kind = domain.SaleKind(kind)
	sale.Seller = common.HexToAddress(seller)
	sale.Buyer = common.HexToAddress(buyer)
	sale.Amount, err = parseAmount(amount)
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

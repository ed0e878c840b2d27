package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptopulse/internal/models"
)

var ErrInvalidHolding = errors.New("invalid holding")

type Store interface {
	ListHoldings(ctx context.Context) ([]models.HoldingLot, error)
	UpsertHolding(ctx context.Context, lot models.HoldingLot) (models.HoldingLot, error)
	DeleteHolding(ctx context.Context, symbol string) error
}

// Fetcher delivers the holdings snapshot for the holdings resource.
type Fetcher interface {
	FetchHoldings(ctx context.Context) (models.HoldingsSnapshot, error)
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) ListHoldings(ctx context.Context) ([]models.HoldingLot, error) {
	snapshot, err := s.FetchHoldings(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Assets, nil
}

// FetchHoldings returns all lots ordered by symbol. LastUpdated is the newest
// row change, or now for an empty table.
func (s *SQLiteStore) FetchHoldings(ctx context.Context) (models.HoldingsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity, cost_basis, updated_at
		FROM holdings ORDER BY symbol ASC`)
	if err != nil {
		return models.HoldingsSnapshot{}, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	out := models.HoldingsSnapshot{Assets: make([]models.HoldingLot, 0)}
	for rows.Next() {
		var lot models.HoldingLot
		var updatedAt time.Time
		if err := rows.Scan(&lot.Symbol, &lot.Quantity, &lot.CostBasis, &updatedAt); err != nil {
			return models.HoldingsSnapshot{}, fmt.Errorf("scan holding: %w", err)
		}
		if updatedAt.After(out.LastUpdated) {
			out.LastUpdated = updatedAt
		}
		out.Assets = append(out.Assets, lot)
	}
	if err := rows.Err(); err != nil {
		return models.HoldingsSnapshot{}, fmt.Errorf("iterate holdings: %w", err)
	}
	if len(out.Assets) == 0 {
		out.LastUpdated = s.now().UTC()
	}
	return out, nil
}

func (s *SQLiteStore) UpsertHolding(ctx context.Context, lot models.HoldingLot) (models.HoldingLot, error) {
	lot.Symbol = normalize(lot.Symbol)
	if err := validate(lot); err != nil {
		return models.HoldingLot{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings(symbol, quantity, cost_basis, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			quantity = excluded.quantity,
			cost_basis = excluded.cost_basis,
			updated_at = excluded.updated_at`,
		lot.Symbol, lot.Quantity, lot.CostBasis, s.now().UTC())
	if err != nil {
		return models.HoldingLot{}, fmt.Errorf("upsert holding: %w", err)
	}
	return lot, nil
}

func (s *SQLiteStore) DeleteHolding(ctx context.Context, symbol string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE symbol = ?`, normalize(symbol))
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("holding rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SeedSample inserts the sample portfolio when the table is empty.
func (s *SQLiteStore) SeedSample(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holdings`).Scan(&n); err != nil {
		return fmt.Errorf("count holdings: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, lot := range SamplePortfolio() {
		if _, err := s.UpsertHolding(ctx, lot); err != nil {
			return err
		}
	}
	return nil
}

func SamplePortfolio() []models.HoldingLot {
	return []models.HoldingLot{
		{Symbol: "BTC", Quantity: 0.5, CostBasis: 22000},
		{Symbol: "ETH", Quantity: 10, CostBasis: 24000},
		{Symbol: "SOL", Quantity: 50, CostBasis: 4500},
		{Symbol: "ADA", Quantity: 10000, CostBasis: 5000},
	}
}

// Static serves a fixed set of lots, stamped with the fetch time.
type Static struct {
	Lots []models.HoldingLot
	Now  func() time.Time
}

func (s Static) FetchHoldings(ctx context.Context) (models.HoldingsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.HoldingsSnapshot{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	lots := make([]models.HoldingLot, len(s.Lots))
	copy(lots, s.Lots)
	return models.HoldingsSnapshot{Assets: lots, LastUpdated: now().UTC()}, nil
}

func validate(lot models.HoldingLot) error {
	if lot.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidHolding)
	}
	if lot.Quantity < 0 || lot.CostBasis < 0 {
		return fmt.Errorf("%w: quantity and cost basis must be non-negative", ErrInvalidHolding)
	}
	return nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Package journal persists aggregated fills to Postgres so trade history
// survives restarts and feeds the daily PnL report.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantrail/sentinel/internal/schema"
)

const (
	tradeUpsertSQL = `
INSERT INTO trades (
    id,
    order_id,
    symbol,
    side,
    quantity,
    price,
    pnl,
    close_type,
    executed_at,
    created_at,
    updated_at
)
VALUES (
    @id,
    @order_id,
    @symbol,
    @side,
    @quantity,
    @price,
    @pnl,
    @close_type,
    to_timestamp(@executed_at),
    NOW(),
    NOW()
)
ON CONFLICT (order_id) DO UPDATE SET
    quantity = EXCLUDED.quantity,
    price = EXCLUDED.price,
    pnl = COALESCE(EXCLUDED.pnl, trades.pnl),
    close_type = CASE WHEN EXCLUDED.close_type <> '' THEN EXCLUDED.close_type ELSE trades.close_type END,
    executed_at = EXCLUDED.executed_at,
    updated_at = NOW();
`

	tradeSelectBase = `
SELECT
    t.id::text,
    t.order_id,
    t.symbol,
    t.side,
    t.quantity::text,
    t.price::text,
    t.pnl::text,
    t.close_type,
    t.executed_at,
    t.created_at
FROM trades t
`

	defaultTradeLimit = 100
	maxTradeLimit     = 1000
)

// Trade is one persisted aggregated fill.
type Trade struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Pnl        *decimal.Decimal
	CloseType  schema.CloseType
	ExecutedAt time.Time
	CreatedAt  time.Time
}

// Store persists trades on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	return pool, nil
}

// RecordFill upserts an aggregated fill keyed by order id. The fill for an
// order can land twice when a late closed-PnL record upgrades it; the second
// write fills in the PnL without duplicating the row.
func (s *Store) RecordFill(ctx context.Context, fill schema.AggregatedFill) error {
	if fill.OrderID == "" {
		return errors.New("journal: fill without order id")
	}
	var pnl *string
	if fill.Pnl != nil {
		v := fill.Pnl.String()
		pnl = &v
	}
	executedAt := fill.ExecTime
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	args := pgx.NamedArgs{
		"id":          uuid.NewString(),
		"order_id":    fill.OrderID,
		"symbol":      fill.Symbol,
		"side":        fill.Side,
		"quantity":    fill.Quantity.String(),
		"price":       fill.Price.String(),
		"pnl":         pnl,
		"close_type":  string(fill.CloseType),
		"executed_at": executedAt.Unix(),
	}
	if _, err := s.pool.Exec(ctx, tradeUpsertSQL, args); err != nil {
		return fmt.Errorf("upsert trade %s: %w", fill.OrderID, err)
	}
	return nil
}

// RecentTrades returns trades newest first, capped at limit.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	query := tradeSelectBase + `ORDER BY t.executed_at DESC LIMIT @limit;`
	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesBetween returns trades executed in [from, to), oldest first.
func (s *Store) TradesBetween(ctx context.Context, from, to time.Time) ([]Trade, error) {
	query := tradeSelectBase + `
WHERE t.executed_at >= @from AND t.executed_at < @to
ORDER BY t.executed_at ASC;`
	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("query trades between: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		var (
			t         Trade
			quantity  string
			price     string
			pnl       *string
			closeType string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side,
			&quantity, &price, &pnl, &closeType, &t.ExecutedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Quantity = schema.DecimalOrZero(quantity)
		t.Price = schema.DecimalOrZero(price)
		if pnl != nil {
			if v, err := decimal.NewFromString(*pnl); err == nil {
				t.Pnl = &v
			}
		}
		t.CloseType = schema.CloseType(closeType)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRevenueView keeps the ledger view in the read_revenue_orders table.
type PostgresRevenueView struct {
	db *sql.DB
}

func NewPostgresRevenueView(db *sql.DB) *PostgresRevenueView {
	return &PostgresRevenueView{db: db}
}

func (v *PostgresRevenueView) Apply(ctx context.Context, e RevenueEntry) (bool, error) {
	res, err := v.db.ExecContext(ctx,
		`INSERT INTO read_revenue_orders (order_id, order_number, amount, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (order_id) DO UPDATE SET
			order_number = EXCLUDED.order_number,
			amount = EXCLUDED.amount,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		 WHERE read_revenue_orders.version < EXCLUDED.version`,
		e.OrderID, e.OrderNumber, e.Amount, e.Version, e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert revenue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (v *PostgresRevenueView) Total(ctx context.Context) (int64, error) {
	var total int64
	err := v.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(amount), 0) FROM read_revenue_orders").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

func (v *PostgresRevenueView) Entries(ctx context.Context) ([]RevenueEntry, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT order_id, order_number, amount, version, updated_at
		 FROM read_revenue_orders
		 ORDER BY order_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("query revenue entries: %w", err)
	}
	defer rows.Close()

	var out []RevenueEntry
	for rows.Next() {
		var e RevenueEntry
		if err := rows.Scan(&e.OrderID, &e.OrderNumber, &e.Amount, &e.Version, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan revenue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (v *PostgresRevenueView) Reset(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, "TRUNCATE read_revenue_orders"); err != nil {
		return fmt.Errorf("reset revenue view: %w", err)
	}
	return nil
}

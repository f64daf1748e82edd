package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// priceTolerance is the maximum drift accepted between a stored configuration
// total and its recomputed value.
var priceTolerance = decimal.NewFromFloat(0.01)

// LineSubtotal returns unitPrice × quantity as an exact decimal product.
// No rounding is applied: currency precision already fixes the price's scale.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// ConfigurationTotal sums the items' subtotals. An empty item list yields
// zero, not an error.
func ConfigurationTotal(items []ConfigurationItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// ValidateConfigurationPrice reports whether a configuration's stored total
// matches the recomputed sum of its items within tolerance.
func ValidateConfigurationPrice(cfg Configuration, items []ConfigurationItem) bool {
	return ConfigurationTotal(items).Sub(cfg.TotalPrice).Abs().LessThanOrEqual(priceTolerance)
}

// PricingEngine resolves live catalog prices. It never re-reads prices for
// existing items: snapshots are taken once, at item creation time, which is
// what prevents silent retroactive repricing.
type PricingEngine interface {
	// CurrentPrice returns the SKU's live unit price.
	// Returns ErrNotFound if the SKU id is unknown.
	CurrentPrice(ctx context.Context, skuID int) (decimal.Decimal, error)

	// SnapshotPrice reads the SKU's live unit price inside the caller's
	// transaction, so the snapshot and the item insert see the same catalog.
	SnapshotPrice(ctx context.Context, tx pgx.Tx, skuID int) (decimal.Decimal, error)
}

type pricingEngine struct {
	pool *pgxpool.Pool
}

// NewPricingEngine constructs a PricingEngine backed by PostgreSQL.
func NewPricingEngine(pool *pgxpool.Pool) PricingEngine {
	return &pricingEngine{pool: pool}
}

func (e *pricingEngine) CurrentPrice(ctx context.Context, skuID int) (decimal.Decimal, error) {
	return currentPrice(ctx, e.pool, skuID)
}

func (e *pricingEngine) SnapshotPrice(ctx context.Context, tx pgx.Tx, skuID int) (decimal.Decimal, error) {
	return currentPrice(ctx, tx, skuID)
}

func currentPrice(ctx context.Context, q querier, skuID int) (decimal.Decimal, error) {
	var price decimal.Decimal
	if err := q.QueryRow(ctx,
		"SELECT unit_price FROM skus WHERE id = $1", skuID,
	).Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("sku %d: %w", skuID, ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("fetch price for sku %d: %w", skuID, err)
	}
	return price, nil
}

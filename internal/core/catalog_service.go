package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// maxUnitPrice is the catalog ceiling for a single SKU unit price.
var maxUnitPrice = decimal.RequireFromString("999999.99")

// SKUInput carries the fields for a new catalog entry.
type SKUInput struct {
	SKUCode   string
	Name      string
	UnitPrice decimal.Decimal
	Supplier  string
	Category  string
}

// CatalogService manages the SKU catalog. Price mutations are audited through
// the IntegrityGuard inside the same transaction.
type CatalogService interface {
	// CreateSKU inserts a new catalog entry. Duplicate codes fail with a
	// ValidationError.
	CreateSKU(ctx context.Context, input SKUInput) (*SKU, error)

	// GetSKU returns a SKU by internal id. Returns ErrNotFound if absent.
	GetSKU(ctx context.Context, skuID int) (*SKU, error)

	// GetSKUByCode returns a SKU by its unique code. Returns ErrNotFound if absent.
	GetSKUByCode(ctx context.Context, code string) (*SKU, error)

	// ListSKUs returns the catalog ordered by code, optionally filtered by supplier.
	ListSKUs(ctx context.Context, supplier string) ([]SKU, error)

	// UpdateSKUPrice sets a new unit price and records a price history row in
	// the same transaction. An unchanged price is a no-op and records nothing.
	// expectedVersion is the row version of the SKU as the caller loaded it;
	// the update fails with ErrConcurrentModification if another writer has
	// moved it since, and the caller retries after a reload.
	UpdateSKUPrice(ctx context.Context, skuID int, newPrice decimal.Decimal, actor string, expectedVersion int) (*SKU, error)

	// GetPriceHistory returns the SKU's audit trail, newest first.
	GetPriceHistory(ctx context.Context, skuID int) ([]PriceHistory, error)
}

type catalogService struct {
	pool  *pgxpool.Pool
	guard IntegrityGuard
}

// NewCatalogService constructs a CatalogService backed by PostgreSQL.
func NewCatalogService(pool *pgxpool.Pool, guard IntegrityGuard) CatalogService {
	return &catalogService{pool: pool, guard: guard}
}

func validateSKUInput(input SKUInput) error {
	if strings.TrimSpace(input.SKUCode) == "" {
		return validationErrorf("sku_code", "sku code must not be empty")
	}
	if len(input.SKUCode) > 50 {
		return validationErrorf("sku_code", "sku code must be at most 50 characters")
	}
	if strings.TrimSpace(input.Name) == "" {
		return validationErrorf("name", "name must not be empty")
	}
	if strings.TrimSpace(input.Supplier) == "" {
		return validationErrorf("supplier", "supplier must not be empty")
	}
	if input.UnitPrice.LessThanOrEqual(decimal.Zero) {
		return validationErrorf("unit_price", "unit price must be positive, got %s", input.UnitPrice)
	}
	if input.UnitPrice.GreaterThan(maxUnitPrice) {
		return validationErrorf("unit_price", "unit price must not exceed %s", maxUnitPrice)
	}
	return nil
}

const skuColumns = "id, sku_code, name, unit_price, supplier, COALESCE(category, ''), row_version, created_at, updated_at"

func scanSKU(row pgx.Row) (*SKU, error) {
	s := &SKU{}
	err := row.Scan(&s.ID, &s.SKUCode, &s.Name, &s.UnitPrice, &s.Supplier, &s.Category,
		&s.RowVersion, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *catalogService) CreateSKU(ctx context.Context, input SKUInput) (*SKU, error) {
	if err := validateSKUInput(input); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM skus WHERE sku_code = $1)", input.SKUCode,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check sku code %q: %w", input.SKUCode, err)
	}
	if exists {
		return nil, validationErrorf("sku_code", "sku code %q already exists", input.SKUCode)
	}

	var category *string
	if input.Category != "" {
		category = &input.Category
	}

	sku, err := scanSKU(s.pool.QueryRow(ctx, `
		INSERT INTO skus (sku_code, name, unit_price, supplier, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+skuColumns,
		input.SKUCode, input.Name, input.UnitPrice, input.Supplier, category,
	))
	if err != nil {
		return nil, fmt.Errorf("create sku %q: %w", input.SKUCode, err)
	}
	return sku, nil
}

func (s *catalogService) GetSKU(ctx context.Context, skuID int) (*SKU, error) {
	sku, err := scanSKU(s.pool.QueryRow(ctx,
		"SELECT "+skuColumns+" FROM skus WHERE id = $1", skuID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sku %d: %w", skuID, ErrNotFound)
		}
		return nil, fmt.Errorf("get sku %d: %w", skuID, err)
	}
	return sku, nil
}

func (s *catalogService) GetSKUByCode(ctx context.Context, code string) (*SKU, error) {
	sku, err := scanSKU(s.pool.QueryRow(ctx,
		"SELECT "+skuColumns+" FROM skus WHERE sku_code = $1", code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sku %q: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get sku %q: %w", code, err)
	}
	return sku, nil
}

func (s *catalogService) ListSKUs(ctx context.Context, supplier string) ([]SKU, error) {
	query := "SELECT " + skuColumns + " FROM skus"
	args := []any{}
	if supplier != "" {
		query += " WHERE supplier = $1"
		args = append(args, supplier)
	}
	query += " ORDER BY sku_code"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}
	defer rows.Close()

	var skus []SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		skus = append(skus, *sku)
	}
	return skus, rows.Err()
}

func (s *catalogService) UpdateSKUPrice(ctx context.Context, skuID int, newPrice decimal.Decimal, actor string, expectedVersion int) (*SKU, error) {
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return nil, validationErrorf("unit_price", "unit price must be positive, got %s", newPrice)
	}
	if newPrice.GreaterThan(maxUnitPrice) {
		return nil, validationErrorf("unit_price", "unit price must not exceed %s", maxUnitPrice)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldPrice decimal.Decimal
	var rowVersion int
	if err := tx.QueryRow(ctx,
		"SELECT unit_price, row_version FROM skus WHERE id = $1 FOR UPDATE", skuID,
	).Scan(&oldPrice, &rowVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sku %d: %w", skuID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch sku %d: %w", skuID, err)
	}

	if rowVersion != expectedVersion {
		return nil, fmt.Errorf("sku %d: version %d, caller had %d: %w",
			skuID, rowVersion, expectedVersion, ErrConcurrentModification)
	}

	if oldPrice.Equal(newPrice) {
		return s.GetSKU(ctx, skuID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE skus
		SET unit_price = $1, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $2`,
		newPrice, skuID,
	); err != nil {
		return nil, fmt.Errorf("update price for sku %d: %w", skuID, err)
	}

	if err := s.guard.RecordPriceChange(ctx, tx, skuID, oldPrice, newPrice, actor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit price update: %w", err)
	}
	return s.GetSKU(ctx, skuID)
}

func (s *catalogService) GetPriceHistory(ctx context.Context, skuID int) ([]PriceHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sku_id, old_price, new_price, changed_at, COALESCE(changed_by, '')
		FROM price_history
		WHERE sku_id = $1
		ORDER BY changed_at DESC, id DESC`,
		skuID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch price history for sku %d: %w", skuID, err)
	}
	defer rows.Close()

	var history []PriceHistory
	for rows.Next() {
		var h PriceHistory
		if err := rows.Scan(&h.ID, &h.SKUID, &h.OldPrice, &h.NewPrice, &h.ChangedAt, &h.ChangedBy); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

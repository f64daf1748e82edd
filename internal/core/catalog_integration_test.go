package core_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"eps-procurement/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE budget_allocations, eps_order_items, eps_orders,
			configuration_items, configurations, requirements,
			price_history, skus CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	return pool
}

// seedSKU inserts a catalog entry with a unique code and returns it.
func seedSKU(t *testing.T, catalog core.CatalogService, supplier, price string) *core.SKU {
	t.Helper()
	sku, err := catalog.CreateSKU(context.Background(), core.SKUInput{
		SKUCode:   fmt.Sprintf("SKU-%s", uuid.NewString()[:8]),
		Name:      fmt.Sprintf("%s test item", supplier),
		UnitPrice: dec(price),
		Supplier:  supplier,
		Category:  "laptop",
	})
	if err != nil {
		t.Fatalf("seed sku: %v", err)
	}
	return sku
}

func TestCatalog_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "1500.00")

	got, err := catalog.GetSKU(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetSKU: %v", err)
	}
	if !got.UnitPrice.Equal(dec("1500.00")) {
		t.Errorf("unit price = %s, want 1500.00", got.UnitPrice)
	}
	if got.Supplier != "Dell" {
		t.Errorf("supplier = %q, want Dell", got.Supplier)
	}

	byCode, err := catalog.GetSKUByCode(ctx, sku.SKUCode)
	if err != nil {
		t.Fatalf("GetSKUByCode: %v", err)
	}
	if byCode.ID != sku.ID {
		t.Errorf("GetSKUByCode returned id %d, want %d", byCode.ID, sku.ID)
	}
}

func TestCatalog_DuplicateCodeRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "HP", "800.00")

	_, err := catalog.CreateSKU(ctx, core.SKUInput{
		SKUCode:   sku.SKUCode,
		Name:      "Duplicate",
		UnitPrice: dec("1.00"),
		Supplier:  "HP",
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for duplicate code, got %v", err)
	}
}

func TestCatalog_GetSKU_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)

	_, err := catalog.GetSKU(context.Background(), 999999)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_UpdateSKUPrice_RecordsHistory(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Lenovo", "1200.00")

	updated, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec("1350.50"), "procurement-lead", sku.RowVersion)
	if err != nil {
		t.Fatalf("UpdateSKUPrice: %v", err)
	}
	if !updated.UnitPrice.Equal(dec("1350.50")) {
		t.Errorf("unit price = %s, want 1350.50", updated.UnitPrice)
	}
	if updated.RowVersion != sku.RowVersion+1 {
		t.Errorf("row version = %d, want %d", updated.RowVersion, sku.RowVersion+1)
	}

	history, err := catalog.GetPriceHistory(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d history rows, want 1", len(history))
	}
	h := history[0]
	if !h.OldPrice.Equal(dec("1200.00")) || !h.NewPrice.Equal(dec("1350.50")) {
		t.Errorf("history prices = %s -> %s, want 1200.00 -> 1350.50", h.OldPrice, h.NewPrice)
	}
	if h.ChangedBy != "procurement-lead" {
		t.Errorf("changed_by = %q, want procurement-lead", h.ChangedBy)
	}
}

func TestCatalog_UpdateSKUPrice_UnchangedIsNoOp(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "999.99")

	updated, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec("999.99"), "nobody", sku.RowVersion)
	if err != nil {
		t.Fatalf("UpdateSKUPrice: %v", err)
	}
	if updated.RowVersion != sku.RowVersion {
		t.Errorf("row version moved on a no-op update: %d -> %d", sku.RowVersion, updated.RowVersion)
	}

	history, err := catalog.GetPriceHistory(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("no-op update wrote %d history rows, want 0", len(history))
	}
}

// A writer still holding the pre-update copy must lose against the version
// check and succeed after reloading.
func TestCatalog_UpdateSKUPrice_StaleVersionRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "500.00")

	fresh, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec("550.00"), "first-writer", sku.RowVersion)
	if err != nil {
		t.Fatalf("UpdateSKUPrice: %v", err)
	}

	_, err = catalog.UpdateSKUPrice(ctx, sku.ID, dec("525.00"), "second-writer", sku.RowVersion)
	if !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification for stale version, got %v", err)
	}

	// The losing write changed nothing.
	reloaded, err := catalog.GetSKU(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetSKU: %v", err)
	}
	if !reloaded.UnitPrice.Equal(dec("550.00")) {
		t.Errorf("unit price = %s, want 550.00 from the winning write", reloaded.UnitPrice)
	}
	history, err := catalog.GetPriceHistory(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetPriceHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("got %d history rows, want 1", len(history))
	}

	// Retry after reload succeeds.
	if _, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec("525.00"), "second-writer", fresh.RowVersion); err != nil {
		t.Errorf("retry with reloaded version: %v", err)
	}
}

func TestCatalog_UpdateSKUPrice_Validation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "100.00")

	tests := []struct {
		name  string
		price string
	}{
		{"zero", "0"},
		{"negative", "-5.00"},
		{"above ceiling", "1000000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec(tt.price), "x", sku.RowVersion)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCatalog_ListSKUs_SupplierFilter(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	catalog := core.NewCatalogService(pool, guard)
	ctx := context.Background()

	seedSKU(t, catalog, "Dell", "100.00")
	seedSKU(t, catalog, "Dell", "200.00")
	seedSKU(t, catalog, "HP", "300.00")

	dell, err := catalog.ListSKUs(ctx, "Dell")
	if err != nil {
		t.Fatalf("ListSKUs: %v", err)
	}
	if len(dell) != 2 {
		t.Errorf("got %d Dell skus, want 2", len(dell))
	}

	all, err := catalog.ListSKUs(ctx, "")
	if err != nil {
		t.Fatalf("ListSKUs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d skus, want 3", len(all))
	}
}

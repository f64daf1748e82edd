package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"eps-procurement/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newServices(pool *pgxpool.Pool) (core.CatalogService, core.RequirementService, core.OrderService, core.IntegrityGuard) {
	guard := core.NewIntegrityGuard(pool)
	pricing := core.NewPricingEngine(pool)
	return core.NewCatalogService(pool, guard),
		core.NewRequirementService(pool, guard, pricing),
		core.NewOrderService(pool),
		guard
}

// seedRequirement creates a draft requirement with a unique code.
func seedRequirement(t *testing.T, reqs core.RequirementService) *core.Requirement {
	t.Helper()
	r, err := reqs.CreateRequirement(context.Background(), core.RequirementInput{
		RequirementCode: fmt.Sprintf("REQ-%s", uuid.NewString()[:8]),
		JiraCase:        "PROC-1234",
		Description:     "test requirement",
	})
	if err != nil {
		t.Fatalf("seed requirement: %v", err)
	}
	return r
}

func TestRequirement_CreateValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	_, reqs, _, _ := newServices(pool)
	ctx := context.Background()

	if _, err := reqs.CreateRequirement(ctx, core.RequirementInput{JiraCase: "PROC-1"}); err == nil {
		t.Errorf("expected error for empty requirement code")
	}
	if _, err := reqs.CreateRequirement(ctx, core.RequirementInput{RequirementCode: "REQ-NOJIRA"}); err == nil {
		t.Errorf("expected error for missing jira case")
	}

	r := seedRequirement(t, reqs)
	_, err := reqs.CreateRequirement(ctx, core.RequirementInput{
		RequirementCode: r.RequirementCode,
		JiraCase:        "PROC-2",
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for duplicate code, got %v", err)
	}
}

func TestRequirement_AddConfiguration_SnapshotsPrices(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, _, _ := newServices(pool)
	ctx := context.Background()

	dell := seedSKU(t, catalog, "Dell", "1500.00")
	hp := seedSKU(t, catalog, "HP", "25.50")
	req := seedRequirement(t, reqs)

	cfg, err := reqs.AddConfiguration(ctx, req.ID, "Developer workstation", []core.ConfigurationItemInput{
		{SKUID: dell.ID, Quantity: 2},
		{SKUID: hp.ID, Quantity: 4},
	})
	if err != nil {
		t.Fatalf("AddConfiguration: %v", err)
	}

	if len(cfg.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(cfg.Items))
	}
	if !cfg.Items[0].UnitPrice.Equal(dec("1500.00")) || !cfg.Items[0].Subtotal.Equal(dec("3000.00")) {
		t.Errorf("first item = %s / %s, want 1500.00 / 3000.00", cfg.Items[0].UnitPrice, cfg.Items[0].Subtotal)
	}
	if !cfg.TotalPrice.Equal(dec("3102.00")) {
		t.Errorf("total = %s, want 3102.00", cfg.TotalPrice)
	}
}

// A catalog price change after item creation must not touch existing snapshots.
func TestRequirement_SnapshotSurvivesPriceChange(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, _, _ := newServices(pool)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "1500.00")
	req := seedRequirement(t, reqs)

	cfg, err := reqs.AddConfiguration(ctx, req.ID, "Before price change", []core.ConfigurationItemInput{
		{SKUID: sku.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("AddConfiguration: %v", err)
	}

	if _, err := catalog.UpdateSKUPrice(ctx, sku.ID, dec("1800.00"), "pricing", sku.RowVersion); err != nil {
		t.Fatalf("UpdateSKUPrice: %v", err)
	}

	// Existing snapshot is untouched.
	reloaded, err := reqs.GetRequirement(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	item := reloaded.Configurations[0].Items[0]
	if !item.UnitPrice.Equal(dec("1500.00")) || !item.Subtotal.Equal(dec("3000.00")) {
		t.Errorf("snapshot changed after price update: %s / %s", item.UnitPrice, item.Subtotal)
	}

	// A new item in the same configuration picks up the new price.
	added, err := reqs.AddConfigurationItem(ctx, cfg.ID, core.ConfigurationItemInput{SKUID: sku.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("AddConfigurationItem: %v", err)
	}
	if !added.UnitPrice.Equal(dec("1800.00")) {
		t.Errorf("new item price = %s, want 1800.00", added.UnitPrice)
	}
}

func TestRequirement_AddConfiguration_UnknownSKU(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	_, reqs, _, _ := newServices(pool)
	ctx := context.Background()

	req := seedRequirement(t, reqs)
	_, err := reqs.AddConfiguration(ctx, req.ID, "Broken", []core.ConfigurationItemInput{
		{SKUID: 999999, Quantity: 1},
	})
	var ie *core.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError for dangling sku reference, got %v", err)
	}

	// Nothing may be written when any item fails resolution.
	reloaded, err := reqs.GetRequirement(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if len(reloaded.Configurations) != 0 {
		t.Errorf("partial configuration persisted: %+v", reloaded.Configurations)
	}
}

func TestRequirement_RemoveItemRecomputesTotal(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, _, _ := newServices(pool)
	ctx := context.Background()

	dell := seedSKU(t, catalog, "Dell", "100.00")
	hp := seedSKU(t, catalog, "HP", "50.00")
	req := seedRequirement(t, reqs)

	cfg, err := reqs.AddConfiguration(ctx, req.ID, "Shrinking", []core.ConfigurationItemInput{
		{SKUID: dell.ID, Quantity: 1},
		{SKUID: hp.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("AddConfiguration: %v", err)
	}

	if err := reqs.RemoveConfigurationItem(ctx, cfg.Items[1].ID); err != nil {
		t.Fatalf("RemoveConfigurationItem: %v", err)
	}

	reloaded, err := reqs.GetRequirement(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	got := reloaded.Configurations[0]
	if len(got.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(got.Items))
	}
	if !got.TotalPrice.Equal(dec("100.00")) {
		t.Errorf("total after removal = %s, want 100.00", got.TotalPrice)
	}
}

func TestRequirement_EditingSplitRequirementRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "100.00")
	req := seedRequirement(t, reqs)
	cfg, err := reqs.AddConfiguration(ctx, req.ID, "Frozen", []core.ConfigurationItemInput{
		{SKUID: sku.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("AddConfiguration: %v", err)
	}

	loaded, err := reqs.GetRequirement(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if _, err := orders.SplitRequirement(ctx, req.ID, []string{"Dell"}, loaded.RowVersion); err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	var ve *core.ValidationError
	if _, err := reqs.AddConfiguration(ctx, req.ID, "Late", []core.ConfigurationItemInput{
		{SKUID: sku.ID, Quantity: 1},
	}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError adding configuration to split requirement, got %v", err)
	}
	if _, err := reqs.AddConfigurationItem(ctx, cfg.ID, core.ConfigurationItemInput{SKUID: sku.ID, Quantity: 1}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError adding item to split requirement, got %v", err)
	}
	if err := reqs.RemoveConfigurationItem(ctx, cfg.Items[0].ID); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError removing item from split requirement, got %v", err)
	}
}

func TestRequirement_ListByStatus(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	sku := seedSKU(t, catalog, "Dell", "100.00")
	draft := seedRequirement(t, reqs)
	split := seedRequirement(t, reqs)
	if _, err := reqs.AddConfiguration(ctx, split.ID, "C", []core.ConfigurationItemInput{
		{SKUID: sku.ID, Quantity: 1},
	}); err != nil {
		t.Fatalf("AddConfiguration: %v", err)
	}
	splitLoaded, err := reqs.GetRequirement(ctx, split.ID)
	if err != nil {
		t.Fatalf("GetRequirement: %v", err)
	}
	if _, err := orders.SplitRequirement(ctx, split.ID, []string{"Dell"}, splitLoaded.RowVersion); err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	drafts, err := reqs.ListRequirements(ctx, core.RequirementDraft)
	if err != nil {
		t.Fatalf("ListRequirements: %v", err)
	}
	if len(drafts) != 1 || drafts[0].ID != draft.ID {
		t.Errorf("draft list = %+v, want only requirement %d", drafts, draft.ID)
	}

	all, err := reqs.ListRequirements(ctx, "")
	if err != nil {
		t.Fatalf("ListRequirements: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d requirements, want 2", len(all))
	}
}

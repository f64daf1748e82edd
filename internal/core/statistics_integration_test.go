package core_test

import (
	"context"
	"testing"
	"time"

	"eps-procurement/internal/core"
)

func TestStatistics_BySupplier(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	req, _ := buildMultiSupplierRequirement(t, catalog, reqs)
	if _, err := orders.SplitRequirement(ctx, req.ID, []string{"Dell", "HP", "Lenovo"}, req.RowVersion); err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	agg := core.NewStatisticsAggregator(pool)
	stats, err := agg.BySupplier(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("BySupplier: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d suppliers, want 3", len(stats))
	}

	// Largest spend first: Dell 4500, Lenovo 3600, HP 800.
	if stats[0].Supplier != "Dell" || !stats[0].TotalAmount.Equal(dec("4500.00")) {
		t.Errorf("stats[0] = %+v, want Dell / 4500.00", stats[0])
	}
	if stats[1].Supplier != "Lenovo" || !stats[1].TotalAmount.Equal(dec("3600.00")) {
		t.Errorf("stats[1] = %+v, want Lenovo / 3600.00", stats[1])
	}
	if stats[2].Supplier != "HP" || !stats[2].TotalAmount.Equal(dec("800.00")) {
		t.Errorf("stats[2] = %+v, want HP / 800.00", stats[2])
	}
	for _, st := range stats {
		if st.OrderCount != 1 {
			t.Errorf("%s order count = %d, want 1", st.Supplier, st.OrderCount)
		}
	}
}

func TestStatistics_ByBudgetCode(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	req, _ := buildMultiSupplierRequirement(t, catalog, reqs)
	created, err := orders.SplitRequirement(ctx, req.ID, []string{"Dell", "HP", "Lenovo"}, req.RowVersion)
	if err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	// Same budget code funds two orders.
	if _, err := orders.AllocateBudget(ctx, created[0].ID, []core.AllocationInput{
		{BudgetCode: "IT-CAPEX-2024", Percentage: dec("60")},
		{BudgetCode: "IT-OPEX-2024", Percentage: dec("40")},
	}, created[0].RowVersion); err != nil {
		t.Fatalf("AllocateBudget: %v", err)
	}
	if _, err := orders.AllocateBudget(ctx, created[1].ID, []core.AllocationInput{
		{BudgetCode: "IT-CAPEX-2024", Percentage: dec("100")},
	}, created[1].RowVersion); err != nil {
		t.Fatalf("AllocateBudget: %v", err)
	}

	agg := core.NewStatisticsAggregator(pool)
	capex, err := agg.ByBudgetCode(ctx, "IT-CAPEX-2024", core.DateRange{})
	if err != nil {
		t.Fatalf("ByBudgetCode: %v", err)
	}
	// 60% of 4500 + 100% of 800.
	if !capex.TotalAmount.Equal(dec("3500.00")) {
		t.Errorf("capex total = %s, want 3500.00", capex.TotalAmount)
	}
	if capex.OrderCount != 2 {
		t.Errorf("capex order count = %d, want 2 distinct orders", capex.OrderCount)
	}

	all, err := agg.AllBudgetCodes(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("AllBudgetCodes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d budget codes, want 2", len(all))
	}
	if all[0].BudgetCode != "IT-CAPEX-2024" {
		t.Errorf("largest spend first: got %q", all[0].BudgetCode)
	}
}

func TestStatistics_ByBudgetCode_AbsentCodeIsZero(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	agg := core.NewStatisticsAggregator(pool)
	st, err := agg.ByBudgetCode(context.Background(), "NEVER-USED", core.DateRange{})
	if err != nil {
		t.Fatalf("ByBudgetCode: %v", err)
	}
	if st.OrderCount != 0 || !st.TotalAmount.IsZero() {
		t.Errorf("expected zero-valued stat, got %+v", st)
	}
}

func TestStatistics_BySKU(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	req, skus := buildMultiSupplierRequirement(t, catalog, reqs)
	if _, err := orders.SplitRequirement(ctx, req.ID, []string{"Dell", "HP", "Lenovo"}, req.RowVersion); err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	agg := core.NewStatisticsAggregator(pool)
	stats, err := agg.BySKU(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("BySKU: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d skus, want 3", len(stats))
	}

	// Dell: qty 3 across both configurations, spend 4500.
	if stats[0].SKUCode != skus["Dell"].SKUCode {
		t.Errorf("largest spend first: got %q", stats[0].SKUCode)
	}
	if stats[0].TotalQuantity != 3 || !stats[0].TotalAmount.Equal(dec("4500.00")) {
		t.Errorf("Dell stat = %+v, want qty 3 / 4500.00", stats[0])
	}
}

func TestStatistics_DateRangeIsClosed(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	catalog, reqs, orders, _ := newServices(pool)
	ctx := context.Background()

	req, _ := buildMultiSupplierRequirement(t, catalog, reqs)
	if _, err := orders.SplitRequirement(ctx, req.ID, []string{"Dell", "HP", "Lenovo"}, req.RowVersion); err != nil {
		t.Fatalf("SplitRequirement: %v", err)
	}

	agg := core.NewStatisticsAggregator(pool)

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	inRange, err := agg.BySupplier(ctx, core.DateRange{Start: &past, End: &future})
	if err != nil {
		t.Fatalf("BySupplier: %v", err)
	}
	if len(inRange) != 3 {
		t.Errorf("closed range covering now returned %d suppliers, want 3", len(inRange))
	}

	before, err := agg.BySupplier(ctx, core.DateRange{End: &past})
	if err != nil {
		t.Fatalf("BySupplier: %v", err)
	}
	if len(before) != 0 {
		t.Errorf("range ending before creation returned %d suppliers, want 0", len(before))
	}

	after, err := agg.BySupplier(ctx, core.DateRange{Start: &future})
	if err != nil {
		t.Fatalf("BySupplier: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("range starting after creation returned %d suppliers, want 0", len(after))
	}
}

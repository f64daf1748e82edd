package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReportTable is a stat slice flattened to plain strings for whatever renders
// or exports it. The core writes no file format.
type ReportTable struct {
	Columns []string
	Rows    [][]string
}

// DateRange bounds a report to orders created inside a closed interval.
// Nil bounds are open ends; a zero DateRange covers everything.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// SupplierStat is one supplier's order rollup.
type SupplierStat struct {
	Supplier    string          `json:"supplier"`
	OrderCount  int             `json:"order_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// BudgetStat is one budget code's allocation rollup. OrderCount counts
// distinct orders that charge the code, not allocation rows.
type BudgetStat struct {
	BudgetCode  string          `json:"budget_code"`
	OrderCount  int             `json:"order_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// SKUStat is one SKU's ordered-quantity and spend rollup across order items.
type SKUStat struct {
	SKUID         int             `json:"sku_id"`
	SKUCode       string          `json:"sku_code"`
	Name          string          `json:"name"`
	TotalQuantity int             `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// StatisticsAggregator produces read-only spend rollups over EPS orders.
type StatisticsAggregator interface {
	// BySupplier returns per-supplier order counts and totals, largest spend first.
	BySupplier(ctx context.Context, rng DateRange) ([]SupplierStat, error)

	// ByBudgetCode returns the rollup for one budget code. A code with no
	// allocations in range yields a zero-valued stat, not an error.
	ByBudgetCode(ctx context.Context, budgetCode string, rng DateRange) (BudgetStat, error)

	// AllBudgetCodes returns rollups for every budget code seen in range,
	// largest spend first.
	AllBudgetCodes(ctx context.Context, rng DateRange) ([]BudgetStat, error)

	// BySKU returns per-SKU ordered quantities and spend, largest spend first.
	BySKU(ctx context.Context, rng DateRange) ([]SKUStat, error)
}

// SupplierReportTable flattens supplier stats for rendering.
func SupplierReportTable(stats []SupplierStat) ReportTable {
	t := ReportTable{Columns: []string{"supplier", "order_count", "total_amount"}}
	for _, st := range stats {
		t.Rows = append(t.Rows, []string{st.Supplier, strconv.Itoa(st.OrderCount), st.TotalAmount.StringFixed(2)})
	}
	return t
}

// BudgetReportTable flattens budget-code stats for rendering.
func BudgetReportTable(stats []BudgetStat) ReportTable {
	t := ReportTable{Columns: []string{"budget_code", "order_count", "total_amount"}}
	for _, st := range stats {
		t.Rows = append(t.Rows, []string{st.BudgetCode, strconv.Itoa(st.OrderCount), st.TotalAmount.StringFixed(2)})
	}
	return t
}

// SKUReportTable flattens SKU stats for rendering.
func SKUReportTable(stats []SKUStat) ReportTable {
	t := ReportTable{Columns: []string{"sku_code", "name", "total_quantity", "total_amount"}}
	for _, st := range stats {
		t.Rows = append(t.Rows, []string{st.SKUCode, st.Name, strconv.Itoa(st.TotalQuantity), st.TotalAmount.StringFixed(2)})
	}
	return t
}

type statisticsAggregator struct {
	pool *pgxpool.Pool
}

// NewStatisticsAggregator constructs a StatisticsAggregator backed by PostgreSQL.
func NewStatisticsAggregator(pool *pgxpool.Pool) StatisticsAggregator {
	return &statisticsAggregator{pool: pool}
}

// rangeClause appends closed-interval bounds on the given timestamp column.
// Both bounds are inclusive.
func rangeClause(column string, rng DateRange, args []any) (string, []any) {
	clause := ""
	if rng.Start != nil {
		args = append(args, *rng.Start)
		clause += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if rng.End != nil {
		args = append(args, *rng.End)
		clause += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}
	return clause, args
}

func (a *statisticsAggregator) BySupplier(ctx context.Context, rng DateRange) ([]SupplierStat, error) {
	args := []any{}
	clause, args := rangeClause("o.created_at", rng, args)
	rows, err := a.pool.Query(ctx, `
		SELECT o.supplier, COUNT(*), COALESCE(SUM(o.total_amount), 0)
		FROM eps_orders o
		WHERE TRUE`+clause+`
		GROUP BY o.supplier
		ORDER BY SUM(o.total_amount) DESC, o.supplier`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("supplier statistics: %w", err)
	}
	defer rows.Close()

	var stats []SupplierStat
	for rows.Next() {
		var st SupplierStat
		if err := rows.Scan(&st.Supplier, &st.OrderCount, &st.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan supplier stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (a *statisticsAggregator) ByBudgetCode(ctx context.Context, budgetCode string, rng DateRange) (BudgetStat, error) {
	if err := ValidateBudgetCode(budgetCode); err != nil {
		return BudgetStat{}, err
	}

	args := []any{budgetCode}
	clause, args := rangeClause("o.created_at", rng, args)
	st := BudgetStat{BudgetCode: budgetCode, TotalAmount: decimal.Zero}
	if err := a.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT ba.order_id), COALESCE(SUM(ba.amount), 0)
		FROM budget_allocations ba
		JOIN eps_orders o ON o.id = ba.order_id
		WHERE ba.budget_code = $1`+clause,
		args...,
	).Scan(&st.OrderCount, &st.TotalAmount); err != nil {
		return BudgetStat{}, fmt.Errorf("budget statistics for %q: %w", budgetCode, err)
	}
	return st, nil
}

func (a *statisticsAggregator) AllBudgetCodes(ctx context.Context, rng DateRange) ([]BudgetStat, error) {
	args := []any{}
	clause, args := rangeClause("o.created_at", rng, args)
	rows, err := a.pool.Query(ctx, `
		SELECT ba.budget_code, COUNT(DISTINCT ba.order_id), COALESCE(SUM(ba.amount), 0)
		FROM budget_allocations ba
		JOIN eps_orders o ON o.id = ba.order_id
		WHERE TRUE`+clause+`
		GROUP BY ba.budget_code
		ORDER BY SUM(ba.amount) DESC, ba.budget_code`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("budget statistics: %w", err)
	}
	defer rows.Close()

	var stats []BudgetStat
	for rows.Next() {
		var st BudgetStat
		if err := rows.Scan(&st.BudgetCode, &st.OrderCount, &st.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan budget stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (a *statisticsAggregator) BySKU(ctx context.Context, rng DateRange) ([]SKUStat, error) {
	args := []any{}
	clause, args := rangeClause("o.created_at", rng, args)
	rows, err := a.pool.Query(ctx, `
		SELECT s.id, s.sku_code, s.name, COALESCE(SUM(oi.quantity), 0), COALESCE(SUM(oi.subtotal), 0)
		FROM eps_order_items oi
		JOIN eps_orders o ON o.id = oi.order_id
		JOIN skus s ON s.id = oi.sku_id
		WHERE TRUE`+clause+`
		GROUP BY s.id, s.sku_code, s.name
		ORDER BY SUM(oi.subtotal) DESC, s.sku_code`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sku statistics: %w", err)
	}
	defer rows.Close()

	var stats []SKUStat
	for rows.Next() {
		var st SKUStat
		if err := rows.Scan(&st.SKUID, &st.SKUCode, &st.Name, &st.TotalQuantity, &st.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan sku stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

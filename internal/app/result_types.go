package app

import "eps-procurement/internal/core"

// SKUListResult wraps a catalog listing.
type SKUListResult struct {
	SKUs []core.SKU
}

// PriceHistoryResult is a SKU's audit trail together with the SKU itself.
type PriceHistoryResult struct {
	SKU     *core.SKU
	History []core.PriceHistory
}

// RequirementListResult wraps a requirement listing.
type RequirementListResult struct {
	Requirements []core.Requirement
}

// SplitResult is the outcome of splitting one requirement.
type SplitResult struct {
	RequirementCode string
	Orders          []core.EPSOrder
}

// OrderListResult wraps an EPS order listing.
type OrderListResult struct {
	Orders []core.EPSOrder
}

// SupplierReportResult wraps the per-supplier spend rollup.
type SupplierReportResult struct {
	Stats []core.SupplierStat
}

// BudgetReportResult wraps the per-budget-code spend rollup.
type BudgetReportResult struct {
	Stats []core.BudgetStat
}

// SKUReportResult wraps the per-SKU spend rollup.
type SKUReportResult struct {
	Stats []core.SKUStat
}

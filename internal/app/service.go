package app

import (
	"context"

	"eps-procurement/internal/core"
)

// ApplicationService is the single interface all UI adapters call. It
// decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// ListSKUs returns the catalog, optionally filtered by supplier.
	ListSKUs(ctx context.Context, supplier string) (*SKUListResult, error)

	// GetSKU returns a single SKU by numeric ID or SKU code string.
	GetSKU(ctx context.Context, ref string) (*core.SKU, error)

	// CreateSKU adds a catalog entry.
	CreateSKU(ctx context.Context, req CreateSKURequest) (*core.SKU, error)

	// ChangePrice updates a SKU's unit price and records the audit entry.
	// ref may be a numeric ID or SKU code string.
	ChangePrice(ctx context.Context, ref string, req ChangePriceRequest) (*core.SKU, error)

	// GetPriceHistory returns a SKU's price audit trail, newest first.
	GetPriceHistory(ctx context.Context, ref string) (*PriceHistoryResult, error)

	// CreateRequirement creates a new DRAFT requirement.
	CreateRequirement(ctx context.Context, req CreateRequirementRequest) (*core.Requirement, error)

	// GetRequirement returns a requirement with its configurations and items.
	// ref may be a numeric ID or requirement code string.
	GetRequirement(ctx context.Context, ref string) (*core.Requirement, error)

	// ListRequirements returns requirements, optionally filtered by status.
	ListRequirements(ctx context.Context, status string) (*RequirementListResult, error)

	// AddConfiguration adds a configuration with items to a draft requirement.
	// Item prices are snapshotted from the catalog at this moment.
	AddConfiguration(ctx context.Context, req AddConfigurationRequest) (*core.Configuration, error)

	// DeleteRequirement deletes a requirement without dependent orders.
	// Fails if any EPS order references it.
	DeleteRequirement(ctx context.Context, ref string) error

	// CascadeDeleteRequirement removes a requirement together with its orders
	// and allocations. Destructive; adapters must confirm before calling.
	CascadeDeleteRequirement(ctx context.Context, ref string) (*core.CascadeDeleteStats, error)

	// SplitRequirement partitions a draft requirement into per-supplier EPS
	// orders. suppliers is the confirmed supplier mapping.
	SplitRequirement(ctx context.Context, ref string, suppliers []string) (*SplitResult, error)

	// GetOrder returns an EPS order with items and allocations.
	// ref may be a numeric ID or order code string.
	GetOrder(ctx context.Context, ref string) (*core.EPSOrder, error)

	// ListOrders returns EPS orders, optionally filtered by status.
	ListOrders(ctx context.Context, status string) (*OrderListResult, error)

	// AllocateBudget validates and persists the full allocation set for an
	// order, replacing any previous set.
	AllocateBudget(ctx context.Context, ref string, allocations []core.AllocationInput) (*core.EPSOrder, error)

	// CloseOrder transitions an allocated order to closed.
	CloseOrder(ctx context.Context, ref string) (*core.EPSOrder, error)

	// SupplierReport returns per-supplier spend totals, largest first.
	SupplierReport(ctx context.Context, from, to string) (*SupplierReportResult, error)

	// BudgetReport returns spend per budget code. With a non-empty code the
	// report covers that code only.
	BudgetReport(ctx context.Context, budgetCode, from, to string) (*BudgetReportResult, error)

	// SKUReport returns ordered quantity and spend per SKU, largest first.
	SKUReport(ctx context.Context, from, to string) (*SKUReportResult, error)

	// InterpretAllocation sends a natural-language budget instruction to the AI
	// agent and returns a validated allocation proposal for review.
	InterpretAllocation(ctx context.Context, text string) (*core.AllocationProposal, error)

	// CommitProposal applies an AI-generated allocation proposal to its order.
	// Must only be called after explicit user approval.
	CommitProposal(ctx context.Context, proposal core.AllocationProposal) (*core.EPSOrder, error)
}

package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eps-procurement/internal/ai"
	"eps-procurement/internal/core"
)

type appService struct {
	catalog      core.CatalogService
	requirements core.RequirementService
	orders       core.OrderService
	guard        core.IntegrityGuard
	stats        core.StatisticsAggregator
	agent        *ai.Agent
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	catalog core.CatalogService,
	requirements core.RequirementService,
	orders core.OrderService,
	guard core.IntegrityGuard,
	stats core.StatisticsAggregator,
	agent *ai.Agent,
) ApplicationService {
	return &appService{
		catalog:      catalog,
		requirements: requirements,
		orders:       orders,
		guard:        guard,
		stats:        stats,
		agent:        agent,
	}
}

// resolveSKU accepts either a numeric ID or a SKU code.
func (s *appService) resolveSKU(ctx context.Context, ref string) (*core.SKU, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return s.catalog.GetSKU(ctx, id)
	}
	return s.catalog.GetSKUByCode(ctx, ref)
}

// resolveRequirement accepts either a numeric ID or a requirement code.
func (s *appService) resolveRequirement(ctx context.Context, ref string) (*core.Requirement, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return s.requirements.GetRequirement(ctx, id)
	}
	return s.requirements.GetRequirementByCode(ctx, ref)
}

// resolveOrder accepts either a numeric ID or an order code.
func (s *appService) resolveOrder(ctx context.Context, ref string) (*core.EPSOrder, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return s.orders.GetOrder(ctx, id)
	}
	return s.orders.GetOrderByCode(ctx, ref)
}

// parseDateRange turns optional "2006-01-02" bounds into a closed interval.
// The end bound is extended to cover its whole day.
func parseDateRange(from, to string) (core.DateRange, error) {
	var rng core.DateRange
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		rng.Start = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		rng.End = &end
	}
	return rng, nil
}

func (s *appService) ListSKUs(ctx context.Context, supplier string) (*SKUListResult, error) {
	skus, err := s.catalog.ListSKUs(ctx, supplier)
	if err != nil {
		return nil, err
	}
	return &SKUListResult{SKUs: skus}, nil
}

func (s *appService) GetSKU(ctx context.Context, ref string) (*core.SKU, error) {
	return s.resolveSKU(ctx, ref)
}

func (s *appService) CreateSKU(ctx context.Context, req CreateSKURequest) (*core.SKU, error) {
	return s.catalog.CreateSKU(ctx, core.SKUInput{
		SKUCode:   req.SKUCode,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Supplier:  req.Supplier,
		Category:  req.Category,
	})
}

func (s *appService) ChangePrice(ctx context.Context, ref string, req ChangePriceRequest) (*core.SKU, error) {
	sku, err := s.resolveSKU(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.catalog.UpdateSKUPrice(ctx, sku.ID, req.NewPrice, req.Actor, sku.RowVersion)
}

func (s *appService) GetPriceHistory(ctx context.Context, ref string) (*PriceHistoryResult, error) {
	sku, err := s.resolveSKU(ctx, ref)
	if err != nil {
		return nil, err
	}
	history, err := s.catalog.GetPriceHistory(ctx, sku.ID)
	if err != nil {
		return nil, err
	}
	return &PriceHistoryResult{SKU: sku, History: history}, nil
}

func (s *appService) CreateRequirement(ctx context.Context, req CreateRequirementRequest) (*core.Requirement, error) {
	return s.requirements.CreateRequirement(ctx, core.RequirementInput{
		RequirementCode: req.RequirementCode,
		JiraCase:        req.JiraCase,
		Description:     req.Description,
	})
}

func (s *appService) GetRequirement(ctx context.Context, ref string) (*core.Requirement, error) {
	return s.resolveRequirement(ctx, ref)
}

func (s *appService) ListRequirements(ctx context.Context, status string) (*RequirementListResult, error) {
	reqs, err := s.requirements.ListRequirements(ctx, core.RequirementStatus(status))
	if err != nil {
		return nil, err
	}
	return &RequirementListResult{Requirements: reqs}, nil
}

func (s *appService) AddConfiguration(ctx context.Context, req AddConfigurationRequest) (*core.Configuration, error) {
	requirement, err := s.resolveRequirement(ctx, req.RequirementRef)
	if err != nil {
		return nil, err
	}

	items := make([]core.ConfigurationItemInput, len(req.Items))
	for i, item := range req.Items {
		sku, err := s.resolveSKU(ctx, item.SKURef)
		if err != nil {
			return nil, err
		}
		items[i] = core.ConfigurationItemInput{SKUID: sku.ID, Quantity: item.Quantity}
	}
	return s.requirements.AddConfiguration(ctx, requirement.ID, req.ConfigName, items)
}

func (s *appService) DeleteRequirement(ctx context.Context, ref string) error {
	requirement, err := s.resolveRequirement(ctx, ref)
	if err != nil {
		return err
	}
	return s.guard.DeleteRequirement(ctx, requirement.ID)
}

func (s *appService) CascadeDeleteRequirement(ctx context.Context, ref string) (*core.CascadeDeleteStats, error) {
	requirement, err := s.resolveRequirement(ctx, ref)
	if err != nil {
		return nil, err
	}
	stats, err := s.guard.CascadeDeleteRequirement(ctx, requirement.ID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *appService) SplitRequirement(ctx context.Context, ref string, suppliers []string) (*SplitResult, error) {
	requirement, err := s.resolveRequirement(ctx, ref)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.SplitRequirement(ctx, requirement.ID, suppliers, requirement.RowVersion)
	if err != nil {
		return nil, err
	}
	return &SplitResult{RequirementCode: requirement.RequirementCode, Orders: orders}, nil
}

func (s *appService) GetOrder(ctx context.Context, ref string) (*core.EPSOrder, error) {
	return s.resolveOrder(ctx, ref)
}

func (s *appService) ListOrders(ctx context.Context, status string) (*OrderListResult, error) {
	orders, err := s.orders.ListOrders(ctx, 0, core.OrderStatus(status))
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

func (s *appService) AllocateBudget(ctx context.Context, ref string, allocations []core.AllocationInput) (*core.EPSOrder, error) {
	order, err := s.resolveOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.orders.AllocateBudget(ctx, order.ID, allocations, order.RowVersion)
}

func (s *appService) CloseOrder(ctx context.Context, ref string) (*core.EPSOrder, error) {
	order, err := s.resolveOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.orders.CloseOrder(ctx, order.ID, order.RowVersion)
}

func (s *appService) SupplierReport(ctx context.Context, from, to string) (*SupplierReportResult, error) {
	rng, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats.BySupplier(ctx, rng)
	if err != nil {
		return nil, err
	}
	return &SupplierReportResult{Stats: stats}, nil
}

func (s *appService) BudgetReport(ctx context.Context, budgetCode, from, to string) (*BudgetReportResult, error) {
	rng, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	if budgetCode != "" {
		stat, err := s.stats.ByBudgetCode(ctx, budgetCode, rng)
		if err != nil {
			return nil, err
		}
		return &BudgetReportResult{Stats: []core.BudgetStat{stat}}, nil
	}
	stats, err := s.stats.AllBudgetCodes(ctx, rng)
	if err != nil {
		return nil, err
	}
	return &BudgetReportResult{Stats: stats}, nil
}

func (s *appService) SKUReport(ctx context.Context, from, to string) (*SKUReportResult, error) {
	rng, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats.BySKU(ctx, rng)
	if err != nil {
		return nil, err
	}
	return &SKUReportResult{Stats: stats}, nil
}

func (s *appService) InterpretAllocation(ctx context.Context, text string) (*core.AllocationProposal, error) {
	if s.agent == nil {
		return nil, fmt.Errorf("AI agent not configured: set OPENAI_API_KEY")
	}
	summary, err := s.pendingOrderSummary(ctx)
	if err != nil {
		return nil, err
	}
	return s.agent.InterpretAllocation(ctx, text, summary)
}

// pendingOrderSummary renders unallocated orders as context for the agent.
func (s *appService) pendingOrderSummary(ctx context.Context) (string, error) {
	pending, err := s.orders.ListOrders(ctx, 0, core.OrderPending)
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "", fmt.Errorf("no pending orders to allocate")
	}
	var b strings.Builder
	for _, o := range pending {
		fmt.Fprintf(&b, "%s  supplier=%s  total=%s\n", o.OrderCode, o.Supplier, o.TotalAmount.StringFixed(2))
	}
	return b.String(), nil
}

func (s *appService) CommitProposal(ctx context.Context, proposal core.AllocationProposal) (*core.EPSOrder, error) {
	proposal.Normalize()
	inputs, err := proposal.Validate()
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrderByCode(ctx, proposal.OrderCode)
	if err != nil {
		return nil, err
	}
	return s.orders.AllocateBudget(ctx, order.ID, inputs, order.RowVersion)
}

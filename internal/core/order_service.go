package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrderService turns split requirements into supplier-specific EPS orders and
// manages their budget allocations and lifecycle.
type OrderService interface {
	// SplitRequirement partitions a draft requirement's items by supplier and
	// creates one EPS order per supplier, atomically with the requirement's
	// transition to split. The suppliers argument is the confirmed mapping: it
	// must cover every supplier that appears in the requirement's items, or the
	// whole split fails with ErrIncompleteMapping and nothing is written.
	// expectedVersion is the requirement's row version as the caller loaded it;
	// configurations added since then bump it, so a stale caller fails with
	// ErrConcurrentModification instead of splitting items it never saw.
	SplitRequirement(ctx context.Context, requirementID int, suppliers []string, expectedVersion int) ([]EPSOrder, error)

	// AllocateBudget validates and persists the full allocation set for an
	// order, replacing any existing set. A pending order becomes allocated.
	// Fails with ErrConcurrentModification if the order's row version no longer
	// matches expectedVersion.
	AllocateBudget(ctx context.Context, orderID int, allocs []AllocationInput, expectedVersion int) (*EPSOrder, error)

	// GetOrder returns an order with its items and allocations.
	GetOrder(ctx context.Context, orderID int) (*EPSOrder, error)

	// GetOrderByCode returns an order by its generated code.
	GetOrderByCode(ctx context.Context, code string) (*EPSOrder, error)

	// ListOrders returns orders newest first, optionally filtered by
	// requirement and/or status.
	ListOrders(ctx context.Context, requirementID int, status OrderStatus) ([]EPSOrder, error)

	// CloseOrder transitions an allocated order to closed. Fails with
	// ErrConcurrentModification if the order's row version no longer matches
	// expectedVersion.
	CloseOrder(ctx context.Context, orderID int, expectedVersion int) (*EPSOrder, error)
}

type orderService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderService constructs an OrderService backed by PostgreSQL.
func NewOrderService(pool *pgxpool.Pool) OrderService {
	return &orderService{pool: pool, now: time.Now}
}

func (s *orderService) SplitRequirement(ctx context.Context, requirementID int, suppliers []string, expectedVersion int) ([]EPSOrder, error) {
	mapping := make(map[string]bool, len(suppliers))
	for _, sup := range suppliers {
		mapping[sup] = true
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var reqCode string
	var status RequirementStatus
	var rowVersion int
	if err := tx.QueryRow(ctx,
		"SELECT requirement_code, status, row_version FROM requirements WHERE id = $1 FOR UPDATE",
		requirementID,
	).Scan(&reqCode, &status, &rowVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("requirement %d: %w", requirementID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch requirement %d: %w", requirementID, err)
	}
	if status != RequirementDraft {
		return nil, fmt.Errorf("requirement %d is %s: %w", requirementID, status, ErrAlreadySplit)
	}
	if rowVersion != expectedVersion {
		return nil, fmt.Errorf("requirement %d: version %d, caller had %d: %w",
			requirementID, rowVersion, expectedVersion, ErrConcurrentModification)
	}

	items, err := flattenItems(ctx, tx, requirementID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("requirement %d: %w", requirementID, ErrEmptyRequirement)
	}

	groups, err := GroupBySupplier(items, mapping)
	if err != nil {
		return nil, err
	}

	stamp := s.now().UTC().Format("20060102150405")
	orders := make([]EPSOrder, 0, len(groups))
	for idx, group := range groups {
		total := decimal.Zero
		for _, it := range group.Items {
			total = total.Add(it.Subtotal)
		}
		code := fmt.Sprintf("EPS-%s-%s-%s-%d", reqCode, supplierTag(group.Supplier), stamp, idx+1)

		order := EPSOrder{}
		if err := tx.QueryRow(ctx, `
			INSERT INTO eps_orders (order_code, requirement_id, supplier, total_amount, status)
			VALUES ($1, $2, $3, $4, 'pending')
			RETURNING id, order_code, requirement_id, supplier, total_amount, status, row_version, created_at, updated_at`,
			code, requirementID, group.Supplier, total,
		).Scan(&order.ID, &order.OrderCode, &order.RequirementID, &order.Supplier,
			&order.TotalAmount, &order.Status, &order.RowVersion, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert order %q: %w", code, err)
		}

		for _, it := range group.Items {
			line := EPSOrderItem{
				OrderID:   order.ID,
				SKUID:     it.SKUID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Subtotal:  it.Subtotal,
			}
			if err := tx.QueryRow(ctx, `
				INSERT INTO eps_order_items (order_id, sku_id, quantity, unit_price, subtotal)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				line.OrderID, line.SKUID, line.Quantity, line.UnitPrice, line.Subtotal,
			).Scan(&line.ID); err != nil {
				return nil, fmt.Errorf("insert order item (sku %d): %w", it.SKUID, err)
			}
			order.Items = append(order.Items, line)
		}
		orders = append(orders, order)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE requirements
		SET status = 'split', row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1`,
		requirementID,
	); err != nil {
		return nil, fmt.Errorf("mark requirement %d split: %w", requirementID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit split: %w", err)
	}
	return orders, nil
}

// flattenItems loads every configuration item of the requirement joined with
// its SKU's supplier, in configuration then item order.
func flattenItems(ctx context.Context, tx pgx.Tx, requirementID int) ([]SourceItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT ci.id, ci.configuration_id, ci.sku_id, ci.quantity, ci.unit_price, ci.subtotal, s.supplier
		FROM configuration_items ci
		JOIN configurations c ON c.id = ci.configuration_id
		JOIN skus s ON s.id = ci.sku_id
		WHERE c.requirement_id = $1
		ORDER BY c.id, ci.id`,
		requirementID,
	)
	if err != nil {
		return nil, fmt.Errorf("flatten items for requirement %d: %w", requirementID, err)
	}
	defer rows.Close()

	var items []SourceItem
	for rows.Next() {
		var it SourceItem
		if err := rows.Scan(&it.ID, &it.ConfigurationID, &it.SKUID, &it.Quantity,
			&it.UnitPrice, &it.Subtotal, &it.Supplier); err != nil {
			return nil, fmt.Errorf("scan flattened item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *orderService) AllocateBudget(ctx context.Context, orderID int, allocs []AllocationInput, expectedVersion int) (*EPSOrder, error) {
	if err := ValidateAllocations(allocs); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var total decimal.Decimal
	var status OrderStatus
	var rowVersion int
	if err := tx.QueryRow(ctx,
		"SELECT total_amount, status, row_version FROM eps_orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&total, &status, &rowVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch order %d: %w", orderID, err)
	}
	if status == OrderClosed {
		return nil, validationErrorf("status", "order %d is closed and cannot be reallocated", orderID)
	}
	if rowVersion != expectedVersion {
		return nil, fmt.Errorf("order %d: version %d, caller had %d: %w",
			orderID, rowVersion, expectedVersion, ErrConcurrentModification)
	}

	computed := ComputeAllocationAmounts(total, allocs)
	if last := computed[len(computed)-1]; last.Amount.IsNegative() {
		return nil, validationErrorf("allocations",
			"allocation %q would absorb a negative remainder (%s); order total %s is too small for this split",
			last.BudgetCode, last.Amount, total)
	}

	// Allocation is set-replacement: the previous set, if any, goes away whole.
	if _, err := tx.Exec(ctx, "DELETE FROM budget_allocations WHERE order_id = $1", orderID); err != nil {
		return nil, fmt.Errorf("clear allocations for order %d: %w", orderID, err)
	}
	for i := range computed {
		a := &computed[i]
		a.OrderID = orderID
		if err := tx.QueryRow(ctx, `
			INSERT INTO budget_allocations (order_id, budget_code, percentage, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			orderID, a.BudgetCode, a.Percentage, a.Amount,
		).Scan(&a.ID); err != nil {
			return nil, fmt.Errorf("insert allocation %q: %w", a.BudgetCode, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE eps_orders
		SET status = 'allocated', row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1`,
		orderID,
	); err != nil {
		return nil, fmt.Errorf("mark order %d allocated: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

const orderColumns = "id, order_code, requirement_id, supplier, total_amount, status, row_version, created_at, updated_at"

func (s *orderService) getOrder(ctx context.Context, where string, arg any) (*EPSOrder, error) {
	o := &EPSOrder{}
	if err := s.pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM eps_orders WHERE "+where, arg,
	).Scan(&o.ID, &o.OrderCode, &o.RequirementID, &o.Supplier, &o.TotalAmount,
		&o.Status, &o.RowVersion, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("get order %v: %w", arg, err)
	}

	items, err := s.fetchOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	allocations, err := s.fetchAllocations(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Allocations = allocations
	return o, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*EPSOrder, error) {
	return s.getOrder(ctx, "id = $1", orderID)
}

func (s *orderService) GetOrderByCode(ctx context.Context, code string) (*EPSOrder, error) {
	return s.getOrder(ctx, "order_code = $1", code)
}

func (s *orderService) fetchOrderItems(ctx context.Context, orderID int) ([]EPSOrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, sku_id, quantity, unit_price, subtotal
		FROM eps_order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []EPSOrderItem
	for rows.Next() {
		var it EPSOrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKUID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *orderService) fetchAllocations(ctx context.Context, orderID int) ([]BudgetAllocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, budget_code, percentage, amount
		FROM budget_allocations
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch allocations for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var allocations []BudgetAllocation
	for rows.Next() {
		var a BudgetAllocation
		if err := rows.Scan(&a.ID, &a.OrderID, &a.BudgetCode, &a.Percentage, &a.Amount); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (s *orderService) ListOrders(ctx context.Context, requirementID int, status OrderStatus) ([]EPSOrder, error) {
	query := "SELECT " + orderColumns + " FROM eps_orders"
	args := []any{}
	var where []string
	if requirementID != 0 {
		args = append(args, requirementID)
		where = append(where, fmt.Sprintf("requirement_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []EPSOrder
	for rows.Next() {
		var o EPSOrder
		if err := rows.Scan(&o.ID, &o.OrderCode, &o.RequirementID, &o.Supplier, &o.TotalAmount,
			&o.Status, &o.RowVersion, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *orderService) CloseOrder(ctx context.Context, orderID int, expectedVersion int) (*EPSOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status OrderStatus
	var rowVersion int
	if err := tx.QueryRow(ctx,
		"SELECT status, row_version FROM eps_orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&status, &rowVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch order %d: %w", orderID, err)
	}
	if status != OrderAllocated {
		return nil, validationErrorf("status", "order %d is %s; only allocated orders can be closed", orderID, status)
	}
	if rowVersion != expectedVersion {
		return nil, fmt.Errorf("order %d: version %d, caller had %d: %w",
			orderID, rowVersion, expectedVersion, ErrConcurrentModification)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE eps_orders
		SET status = 'closed', row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1`,
		orderID,
	); err != nil {
		return nil, fmt.Errorf("close order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit close: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

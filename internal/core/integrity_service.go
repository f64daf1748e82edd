package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// EntityKind names a referenceable entity for existence checks.
type EntityKind string

const (
	KindSKU           EntityKind = "sku"
	KindRequirement   EntityKind = "requirement"
	KindConfiguration EntityKind = "configuration"
	KindOrder         EntityKind = "order"
)

var kindTables = map[EntityKind]string{
	KindSKU:           "skus",
	KindRequirement:   "requirements",
	KindConfiguration: "configurations",
	KindOrder:         "eps_orders",
}

// RequirementDependencies describes what blocks a requirement delete.
type RequirementDependencies struct {
	OrderCount int
	Blocked    bool
}

// CascadeDeleteStats counts rows removed by a cascade delete, per table.
type CascadeDeleteStats struct {
	Configurations     int64
	ConfigurationItems int64
	Orders             int64
	OrderItems         int64
	BudgetAllocations  int64
}

// IntegrityGuard enforces referential-existence and dependency constraints
// before mutation, and records price-change audit entries. It is consulted at
// every structural mutation regardless of pipeline stage.
type IntegrityGuard interface {
	// AssertExists fails with an IntegrityError (dangling reference) if the
	// referenced row is absent. Called before any insert carrying a foreign key.
	AssertExists(ctx context.Context, kind EntityKind, id int) error

	// CheckRequirementDeletable reports whether the requirement can be deleted.
	// A requirement with one or more dependent EPS orders is blocked; the core
	// never cascades silently.
	CheckRequirementDeletable(ctx context.Context, requirementID int) (RequirementDependencies, error)

	// DeleteRequirement deletes a requirement and its configurations/items.
	// Fails with an IntegrityError if dependent orders exist.
	DeleteRequirement(ctx context.Context, requirementID int) error

	// CascadeDeleteRequirement deliberately removes the requirement together
	// with its orders, order items, and budget allocations. It must be invoked
	// explicitly and is never the default delete behavior.
	CascadeDeleteRequirement(ctx context.Context, requirementID int) (CascadeDeleteStats, error)

	// RecordPriceChange appends one immutable price history row inside the
	// caller's price-mutation transaction. Invoked only for price mutations,
	// never for other field changes.
	RecordPriceChange(ctx context.Context, tx pgx.Tx, skuID int, oldPrice, newPrice decimal.Decimal, actor string) error
}

type integrityGuard struct {
	pool *pgxpool.Pool
}

// NewIntegrityGuard constructs an IntegrityGuard backed by PostgreSQL.
func NewIntegrityGuard(pool *pgxpool.Pool) IntegrityGuard {
	return &integrityGuard{pool: pool}
}

func (g *integrityGuard) AssertExists(ctx context.Context, kind EntityKind, id int) error {
	return assertExists(ctx, g.pool, kind, id)
}

// querier covers both pool and transaction so existence checks can run inside
// a caller's transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func assertExists(ctx context.Context, q querier, kind EntityKind, id int) error {
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	var exists bool
	if err := q.QueryRow(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table), id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("existence check for %s %d: %w", kind, id, err)
	}
	if !exists {
		return danglingReference(string(kind), id)
	}
	return nil
}

func (g *integrityGuard) CheckRequirementDeletable(ctx context.Context, requirementID int) (RequirementDependencies, error) {
	if err := g.AssertExists(ctx, KindRequirement, requirementID); err != nil {
		return RequirementDependencies{}, err
	}

	var deps RequirementDependencies
	if err := g.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM eps_orders WHERE requirement_id = $1", requirementID,
	).Scan(&deps.OrderCount); err != nil {
		return RequirementDependencies{}, fmt.Errorf("count dependent orders for requirement %d: %w", requirementID, err)
	}
	deps.Blocked = deps.OrderCount > 0
	return deps, nil
}

func (g *integrityGuard) DeleteRequirement(ctx context.Context, requirementID int) error {
	deps, err := g.CheckRequirementDeletable(ctx, requirementID)
	if err != nil {
		return err
	}
	if deps.Blocked {
		return &IntegrityError{
			EntityKind:     string(KindRequirement),
			EntityID:       requirementID,
			DependentCount: deps.OrderCount,
			Message:        fmt.Sprintf("requirement %d has %d dependent orders and cannot be deleted", requirementID, deps.OrderCount),
		}
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := deleteConfigurations(ctx, tx, requirementID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM requirements WHERE id = $1", requirementID); err != nil {
		return fmt.Errorf("delete requirement %d: %w", requirementID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit requirement delete: %w", err)
	}
	return nil
}

func (g *integrityGuard) CascadeDeleteRequirement(ctx context.Context, requirementID int) (CascadeDeleteStats, error) {
	if err := g.AssertExists(ctx, KindRequirement, requirementID); err != nil {
		return CascadeDeleteStats{}, err
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stats CascadeDeleteStats

	tag, err := tx.Exec(ctx, `
		DELETE FROM budget_allocations
		WHERE order_id IN (SELECT id FROM eps_orders WHERE requirement_id = $1)`,
		requirementID,
	)
	if err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("cascade delete budget allocations: %w", err)
	}
	stats.BudgetAllocations = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM eps_order_items
		WHERE order_id IN (SELECT id FROM eps_orders WHERE requirement_id = $1)`,
		requirementID,
	)
	if err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("cascade delete order items: %w", err)
	}
	stats.OrderItems = tag.RowsAffected()

	tag, err = tx.Exec(ctx, "DELETE FROM eps_orders WHERE requirement_id = $1", requirementID)
	if err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("cascade delete orders: %w", err)
	}
	stats.Orders = tag.RowsAffected()

	itemCount, cfgCount, err := deleteConfigurationsCounted(ctx, tx, requirementID)
	if err != nil {
		return CascadeDeleteStats{}, err
	}
	stats.ConfigurationItems = itemCount
	stats.Configurations = cfgCount

	if _, err := tx.Exec(ctx, "DELETE FROM requirements WHERE id = $1", requirementID); err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("cascade delete requirement %d: %w", requirementID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CascadeDeleteStats{}, fmt.Errorf("commit cascade delete: %w", err)
	}
	return stats, nil
}

func deleteConfigurations(ctx context.Context, tx pgx.Tx, requirementID int) error {
	_, _, err := deleteConfigurationsCounted(ctx, tx, requirementID)
	return err
}

func deleteConfigurationsCounted(ctx context.Context, tx pgx.Tx, requirementID int) (items, configs int64, err error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM configuration_items
		WHERE configuration_id IN (SELECT id FROM configurations WHERE requirement_id = $1)`,
		requirementID,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("delete configuration items for requirement %d: %w", requirementID, err)
	}
	items = tag.RowsAffected()

	tag, err = tx.Exec(ctx, "DELETE FROM configurations WHERE requirement_id = $1", requirementID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete configurations for requirement %d: %w", requirementID, err)
	}
	return items, tag.RowsAffected(), nil
}

func (g *integrityGuard) RecordPriceChange(ctx context.Context, tx pgx.Tx, skuID int, oldPrice, newPrice decimal.Decimal, actor string) error {
	var changedBy *string
	if actor != "" {
		changedBy = &actor
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO price_history (sku_id, old_price, new_price, changed_by)
		VALUES ($1, $2, $3, $4)`,
		skuID, oldPrice, newPrice, changedBy,
	); err != nil {
		return fmt.Errorf("record price change for sku %d: %w", skuID, err)
	}
	return nil
}

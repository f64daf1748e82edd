package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequirementInput carries the fields for a new requirement.
type RequirementInput struct {
	RequirementCode string
	JiraCase        string
	Description     string
}

// ConfigurationItemInput is one requested SKU line in a configuration. The
// unit price is snapshotted from the catalog at creation time, not supplied.
type ConfigurationItemInput struct {
	SKUID    int
	Quantity int
}

// RequirementService manages requirements and their configurations while the
// requirement is in draft. All derived totals come from the PricingEngine's
// pure functions; snapshots are taken here, at item creation.
type RequirementService interface {
	// CreateRequirement inserts a new draft requirement. Duplicate codes fail
	// with a ValidationError.
	CreateRequirement(ctx context.Context, input RequirementInput) (*Requirement, error)

	// GetRequirement returns a requirement with its configurations and items.
	// Returns ErrNotFound if absent.
	GetRequirement(ctx context.Context, requirementID int) (*Requirement, error)

	// GetRequirementByCode returns a requirement by its unique code.
	GetRequirementByCode(ctx context.Context, code string) (*Requirement, error)

	// ListRequirements returns requirements ordered by creation time descending,
	// optionally filtered by status.
	ListRequirements(ctx context.Context, status RequirementStatus) ([]Requirement, error)

	// AddConfiguration adds a configuration with its items to a draft
	// requirement. Each item's unit price is snapshotted from the SKU's current
	// catalog price; the configuration total is derived from the items.
	AddConfiguration(ctx context.Context, requirementID int, name string, items []ConfigurationItemInput) (*Configuration, error)

	// AddConfigurationItem appends one item to an existing configuration of a
	// draft requirement and recomputes the configuration total.
	AddConfigurationItem(ctx context.Context, configurationID int, input ConfigurationItemInput) (*ConfigurationItem, error)

	// RemoveConfigurationItem removes an item from a draft requirement's
	// configuration and recomputes the configuration total.
	RemoveConfigurationItem(ctx context.Context, itemID int) error
}

type requirementService struct {
	pool    *pgxpool.Pool
	guard   IntegrityGuard
	pricing PricingEngine
}

// NewRequirementService constructs a RequirementService backed by PostgreSQL.
// Item price snapshots come from the PricingEngine.
func NewRequirementService(pool *pgxpool.Pool, guard IntegrityGuard, pricing PricingEngine) RequirementService {
	return &requirementService{pool: pool, guard: guard, pricing: pricing}
}

func (s *requirementService) CreateRequirement(ctx context.Context, input RequirementInput) (*Requirement, error) {
	if strings.TrimSpace(input.RequirementCode) == "" {
		return nil, validationErrorf("requirement_code", "requirement code must not be empty")
	}
	if len(input.RequirementCode) > 50 {
		return nil, validationErrorf("requirement_code", "requirement code must be at most 50 characters")
	}
	if strings.TrimSpace(input.JiraCase) == "" {
		return nil, validationErrorf("jira_case", "jira case must not be empty")
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM requirements WHERE requirement_code = $1)", input.RequirementCode,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check requirement code %q: %w", input.RequirementCode, err)
	}
	if exists {
		return nil, validationErrorf("requirement_code", "requirement code %q already exists", input.RequirementCode)
	}

	var description *string
	if input.Description != "" {
		description = &input.Description
	}

	r := &Requirement{}
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO requirements (requirement_code, jira_case, description, status)
		VALUES ($1, $2, $3, 'draft')
		RETURNING id, requirement_code, jira_case, COALESCE(description, ''), status, row_version, created_at, updated_at`,
		input.RequirementCode, input.JiraCase, description,
	).Scan(&r.ID, &r.RequirementCode, &r.JiraCase, &r.Description, &r.Status,
		&r.RowVersion, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create requirement %q: %w", input.RequirementCode, err)
	}
	return r, nil
}

const requirementColumns = "id, requirement_code, jira_case, COALESCE(description, ''), status, row_version, created_at, updated_at"

func (s *requirementService) getRequirement(ctx context.Context, where string, arg any) (*Requirement, error) {
	r := &Requirement{}
	if err := s.pool.QueryRow(ctx,
		"SELECT "+requirementColumns+" FROM requirements WHERE "+where, arg,
	).Scan(&r.ID, &r.RequirementCode, &r.JiraCase, &r.Description, &r.Status,
		&r.RowVersion, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("requirement %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("get requirement %v: %w", arg, err)
	}

	configs, err := s.fetchConfigurations(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Configurations = configs
	return r, nil
}

func (s *requirementService) GetRequirement(ctx context.Context, requirementID int) (*Requirement, error) {
	return s.getRequirement(ctx, "id = $1", requirementID)
}

func (s *requirementService) GetRequirementByCode(ctx context.Context, code string) (*Requirement, error) {
	return s.getRequirement(ctx, "requirement_code = $1", code)
}

func (s *requirementService) ListRequirements(ctx context.Context, status RequirementStatus) ([]Requirement, error) {
	query := "SELECT " + requirementColumns + " FROM requirements"
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []Requirement
	for rows.Next() {
		var r Requirement
		if err := rows.Scan(&r.ID, &r.RequirementCode, &r.JiraCase, &r.Description, &r.Status,
			&r.RowVersion, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *requirementService) fetchConfigurations(ctx context.Context, requirementID int) ([]Configuration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, requirement_id, config_name, total_price, created_at
		FROM configurations
		WHERE requirement_id = $1
		ORDER BY id`,
		requirementID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch configurations for requirement %d: %w", requirementID, err)
	}
	defer rows.Close()

	var configs []Configuration
	for rows.Next() {
		var c Configuration
		if err := rows.Scan(&c.ID, &c.RequirementID, &c.ConfigName, &c.TotalPrice, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range configs {
		items, err := s.fetchItems(ctx, configs[i].ID)
		if err != nil {
			return nil, err
		}
		configs[i].Items = items
	}
	return configs, nil
}

func (s *requirementService) fetchItems(ctx context.Context, configurationID int) ([]ConfigurationItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, configuration_id, sku_id, quantity, unit_price, subtotal
		FROM configuration_items
		WHERE configuration_id = $1
		ORDER BY id`,
		configurationID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch items for configuration %d: %w", configurationID, err)
	}
	defer rows.Close()

	var items []ConfigurationItem
	for rows.Next() {
		var it ConfigurationItem
		if err := rows.Scan(&it.ID, &it.ConfigurationID, &it.SKUID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan configuration item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// requireDraft loads a requirement's status inside the transaction and fails
// unless it is still draft.
func requireDraft(ctx context.Context, tx pgx.Tx, requirementID int) error {
	var status RequirementStatus
	if err := tx.QueryRow(ctx,
		"SELECT status FROM requirements WHERE id = $1 FOR UPDATE", requirementID,
	).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("requirement %d: %w", requirementID, ErrNotFound)
		}
		return fmt.Errorf("fetch requirement %d: %w", requirementID, err)
	}
	if status != RequirementDraft {
		return validationErrorf("status", "requirement %d is %s; only draft requirements can be edited", requirementID, status)
	}
	return nil
}

// bumpRequirementVersion marks the requirement as changed. Callers holding an
// older copy then fail their next versioned write with
// ErrConcurrentModification instead of acting on content they never saw.
func bumpRequirementVersion(ctx context.Context, tx pgx.Tx, requirementID int) error {
	if _, err := tx.Exec(ctx,
		"UPDATE requirements SET row_version = row_version + 1, updated_at = NOW() WHERE id = $1",
		requirementID,
	); err != nil {
		return fmt.Errorf("bump version for requirement %d: %w", requirementID, err)
	}
	return nil
}

func (s *requirementService) AddConfiguration(ctx context.Context, requirementID int, name string, items []ConfigurationItemInput) (*Configuration, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationErrorf("config_name", "configuration name must not be empty")
	}
	if len(name) > 100 {
		return nil, validationErrorf("config_name", "configuration name must be at most 100 characters")
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, validationErrorf("quantity", "quantity must be at least 1, got %d", it.Quantity)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := requireDraft(ctx, tx, requirementID); err != nil {
		return nil, err
	}

	// Snapshot each item's price before anything is inserted so a dangling SKU
	// rejects the whole configuration.
	resolved := make([]ConfigurationItem, 0, len(items))
	for _, it := range items {
		snapshot, err := s.snapshotItem(ctx, tx, it)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, snapshot)
	}
	total := ConfigurationTotal(resolved)

	cfg := &Configuration{}
	if err := tx.QueryRow(ctx, `
		INSERT INTO configurations (requirement_id, config_name, total_price)
		VALUES ($1, $2, $3)
		RETURNING id, requirement_id, config_name, total_price, created_at`,
		requirementID, name, total,
	).Scan(&cfg.ID, &cfg.RequirementID, &cfg.ConfigName, &cfg.TotalPrice, &cfg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert configuration %q: %w", name, err)
	}

	for i := range resolved {
		it := &resolved[i]
		it.ConfigurationID = cfg.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO configuration_items (configuration_id, sku_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			cfg.ID, it.SKUID, it.Quantity, it.UnitPrice, it.Subtotal,
		).Scan(&it.ID); err != nil {
			return nil, fmt.Errorf("insert configuration item (sku %d): %w", it.SKUID, err)
		}
	}
	cfg.Items = resolved

	if err := bumpRequirementVersion(ctx, tx, requirementID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit configuration: %w", err)
	}
	return cfg, nil
}

// snapshotItem resolves an item input against the catalog, capturing the
// SKU's current price as the item's permanent snapshot.
func (s *requirementService) snapshotItem(ctx context.Context, tx pgx.Tx, input ConfigurationItemInput) (ConfigurationItem, error) {
	if err := assertExists(ctx, tx, KindSKU, input.SKUID); err != nil {
		return ConfigurationItem{}, err
	}
	price, err := s.pricing.SnapshotPrice(ctx, tx, input.SKUID)
	if err != nil {
		return ConfigurationItem{}, err
	}
	return ConfigurationItem{
		SKUID:     input.SKUID,
		Quantity:  input.Quantity,
		UnitPrice: price,
		Subtotal:  LineSubtotal(price, input.Quantity),
	}, nil
}

func (s *requirementService) AddConfigurationItem(ctx context.Context, configurationID int, input ConfigurationItemInput) (*ConfigurationItem, error) {
	if input.Quantity < 1 {
		return nil, validationErrorf("quantity", "quantity must be at least 1, got %d", input.Quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var requirementID int
	if err := tx.QueryRow(ctx,
		"SELECT requirement_id FROM configurations WHERE id = $1", configurationID,
	).Scan(&requirementID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("configuration %d: %w", configurationID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch configuration %d: %w", configurationID, err)
	}
	if err := requireDraft(ctx, tx, requirementID); err != nil {
		return nil, err
	}

	item, err := s.snapshotItem(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	item.ConfigurationID = configurationID

	if err := tx.QueryRow(ctx, `
		INSERT INTO configuration_items (configuration_id, sku_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		configurationID, item.SKUID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID); err != nil {
		return nil, fmt.Errorf("insert configuration item (sku %d): %w", item.SKUID, err)
	}

	if err := recomputeConfigurationTotal(ctx, tx, configurationID); err != nil {
		return nil, err
	}
	if err := bumpRequirementVersion(ctx, tx, requirementID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit configuration item: %w", err)
	}
	return &item, nil
}

func (s *requirementService) RemoveConfigurationItem(ctx context.Context, itemID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var configurationID, requirementID int
	if err := tx.QueryRow(ctx, `
		SELECT ci.configuration_id, c.requirement_id
		FROM configuration_items ci
		JOIN configurations c ON c.id = ci.configuration_id
		WHERE ci.id = $1`,
		itemID,
	).Scan(&configurationID, &requirementID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("configuration item %d: %w", itemID, ErrNotFound)
		}
		return fmt.Errorf("fetch configuration item %d: %w", itemID, err)
	}
	if err := requireDraft(ctx, tx, requirementID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM configuration_items WHERE id = $1", itemID); err != nil {
		return fmt.Errorf("delete configuration item %d: %w", itemID, err)
	}
	if err := recomputeConfigurationTotal(ctx, tx, configurationID); err != nil {
		return err
	}
	if err := bumpRequirementVersion(ctx, tx, requirementID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit item removal: %w", err)
	}
	return nil
}

// recomputeConfigurationTotal rewrites the derived total from the surviving
// items inside the caller's transaction.
func recomputeConfigurationTotal(ctx context.Context, tx pgx.Tx, configurationID int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE configurations
		SET total_price = COALESCE(
			(SELECT SUM(subtotal) FROM configuration_items WHERE configuration_id = $1), 0)
		WHERE id = $1`,
		configurationID,
	); err != nil {
		return fmt.Errorf("recompute total for configuration %d: %w", configurationID, err)
	}
	return nil
}

package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequirementStatus string

const (
	RequirementDraft  RequirementStatus = "draft"
	RequirementSplit  RequirementStatus = "split"
	RequirementClosed RequirementStatus = "closed"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAllocated OrderStatus = "allocated"
	OrderClosed    OrderStatus = "closed"
)

// SKU is a priced, supplier-tagged catalog line item under a framework agreement.
// UnitPrice is the live catalog price; items always carry their own snapshot.
type SKU struct {
	ID         int             `json:"id"`
	SKUCode    string          `json:"sku_code"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Supplier   string          `json:"supplier"`
	Category   string          `json:"category,omitempty"`
	RowVersion int             `json:"row_version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PriceHistory is an immutable audit record of one SKU price mutation.
// Written exactly once per price change, never updated or deleted.
type PriceHistory struct {
	ID        int             `json:"id"`
	SKUID     int             `json:"sku_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangedAt time.Time       `json:"changed_at"`
	ChangedBy string          `json:"changed_by,omitempty"`
}

// Requirement is a purchase intent composed of one or more configurations.
// Status moves draft → split → closed; splitting is one-way.
type Requirement struct {
	ID              int               `json:"id"`
	RequirementCode string            `json:"requirement_code"`
	JiraCase        string            `json:"jira_case"`
	Description     string            `json:"description,omitempty"`
	Status          RequirementStatus `json:"status"`
	RowVersion      int               `json:"row_version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Configurations  []Configuration   `json:"configurations,omitempty"`
}

// Configuration is a named bundle of SKU line items. TotalPrice is derived
// from the items' subtotals and never set independently.
type Configuration struct {
	ID            int                 `json:"id"`
	RequirementID int                 `json:"requirement_id"`
	ConfigName    string              `json:"config_name"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []ConfigurationItem `json:"items,omitempty"`
}

// ConfigurationItem references a SKU with a price snapshot taken at item
// creation time. Later catalog price changes do not touch UnitPrice or Subtotal.
type ConfigurationItem struct {
	ID              int             `json:"id"`
	ConfigurationID int             `json:"configuration_id"`
	SKUID           int             `json:"sku_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

// EPSOrder is a supplier-specific purchase order produced by splitting a
// requirement. TotalAmount is derived from its items.
type EPSOrder struct {
	ID            int                `json:"id"`
	OrderCode     string             `json:"order_code"`
	RequirementID int                `json:"requirement_id"`
	Supplier      string             `json:"supplier"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Status        OrderStatus        `json:"status"`
	RowVersion    int                `json:"row_version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Items         []EPSOrderItem     `json:"items,omitempty"`
	Allocations   []BudgetAllocation `json:"allocations,omitempty"`
}

// EPSOrderItem carries the snapshot price/quantity/subtotal copied from the
// source configuration item at split time. Immutable once written.
type EPSOrderItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	SKUID     int             `json:"sku_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// BudgetAllocation assigns a percentage of an order's total to a budget code.
// Amounts across one order's allocation set sum exactly to the order total.
type BudgetAllocation struct {
	ID         int             `json:"id"`
	OrderID    int             `json:"order_id"`
	BudgetCode string          `json:"budget_code"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

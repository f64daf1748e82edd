package app

import "github.com/shopspring/decimal"

// CreateSKURequest carries the fields for a new catalog entry.
type CreateSKURequest struct {
	SKUCode   string
	Name      string
	UnitPrice decimal.Decimal
	Supplier  string
	Category  string
}

// ChangePriceRequest carries a price mutation and the acting user.
type ChangePriceRequest struct {
	NewPrice decimal.Decimal
	Actor    string
}

// CreateRequirementRequest carries the fields for a new draft requirement.
type CreateRequirementRequest struct {
	RequirementCode string
	JiraCase        string
	Description     string
}

// ConfigurationItemRequest is one requested SKU line. SKURef may be a numeric
// ID or a SKU code string.
type ConfigurationItemRequest struct {
	SKURef   string
	Quantity int
}

// AddConfigurationRequest adds a named configuration to a draft requirement.
type AddConfigurationRequest struct {
	RequirementRef string
	ConfigName     string
	Items          []ConfigurationItemRequest
}

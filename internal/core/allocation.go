package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// percentageTolerance is the accepted drift on the allocation percentage sum.
var percentageTolerance = decimal.NewFromFloat(0.01)

var hundred = decimal.NewFromInt(100)

// Budget codes: 3-50 chars, letters/digits/hyphen/underscore, leading
// character alphanumeric.
var budgetCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_]*$`)

// AllocationInput is one requested budget-code share of an order total.
type AllocationInput struct {
	BudgetCode string          `json:"budget_code"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ValidateBudgetCode checks the budget code format.
func ValidateBudgetCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return validationErrorf("budget_code", "budget code must not be empty")
	}
	if len(code) < 3 || len(code) > 50 {
		return validationErrorf("budget_code", "budget code must be 3-50 characters, got %d", len(code))
	}
	if !budgetCodePattern.MatchString(code) {
		return validationErrorf("budget_code", "budget code %q contains invalid characters", code)
	}
	return nil
}

// ValidateAllocations checks an ordered allocation set before it is accepted:
// non-empty, well-formed codes, no duplicate code, each percentage in (0, 100]
// (checked individually before the sum), and the percentages summing to 100
// within tolerance.
func ValidateAllocations(allocs []AllocationInput) error {
	if len(allocs) == 0 {
		return validationErrorf("allocations", "allocation set must not be empty")
	}

	seen := make(map[string]bool, len(allocs))
	total := decimal.Zero
	for _, a := range allocs {
		if err := ValidateBudgetCode(a.BudgetCode); err != nil {
			return err
		}
		if seen[a.BudgetCode] {
			return validationErrorf("budget_code", "duplicate budget code %q in allocation set", a.BudgetCode)
		}
		seen[a.BudgetCode] = true

		if a.Percentage.LessThanOrEqual(decimal.Zero) || a.Percentage.GreaterThan(hundred) {
			return validationErrorf("percentage", "allocation percentage must be in (0, 100], got %s", a.Percentage)
		}
		total = total.Add(a.Percentage)
	}

	if total.Sub(hundred).Abs().GreaterThan(percentageTolerance) {
		return validationErrorf("percentage", "allocation percentages must sum to 100, got %s", total)
	}
	return nil
}

// ComputeAllocationAmounts derives the monetary amount of each allocation.
// All but the last amount are orderTotal × percentage / 100 rounded half-up to
// currency precision; the last allocation absorbs the rounding remainder so
// the amounts sum exactly to orderTotal. Caller order decides which is last.
// On a total small enough that the rounded leading amounts exceed it, the last
// amount comes out negative; AllocateBudget rejects such splits before
// persisting anything.
func ComputeAllocationAmounts(orderTotal decimal.Decimal, allocs []AllocationInput) []BudgetAllocation {
	out := make([]BudgetAllocation, 0, len(allocs))
	allocated := decimal.Zero
	for i, a := range allocs {
		var amount decimal.Decimal
		if i == len(allocs)-1 {
			amount = orderTotal.Sub(allocated)
		} else {
			amount = orderTotal.Mul(a.Percentage).Div(hundred).Round(2)
			allocated = allocated.Add(amount)
		}
		out = append(out, BudgetAllocation{
			BudgetCode: a.BudgetCode,
			Percentage: a.Percentage,
			Amount:     amount,
		})
	}
	return out
}

// AllocationProposal is an AI-generated budget split for one order. It is
// normalized and validated before it is ever shown to the user, and persisted
// only after explicit approval.
type AllocationProposal struct {
	OrderCode   string                   `json:"order_code" jsonschema_description:"The exact order code of the EPS order to allocate"`
	Allocations []ProposedAllocationLine `json:"allocations" jsonschema_description:"Ordered list of budget code shares. Percentages must sum to 100."`
	Confidence  float64                  `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	Reasoning   string                   `json:"reasoning" jsonschema_description:"Explanation for the proposed split"`
}

// ProposedAllocationLine is one budget-code share in an AllocationProposal.
// Percentage travels as a string to keep the model output exact.
type ProposedAllocationLine struct {
	BudgetCode string `json:"budget_code" jsonschema_description:"The budget code, 3-50 alphanumeric/hyphen/underscore characters"`
	Percentage string `json:"percentage" jsonschema_description:"The percentage share as a decimal string, e.g. \"60.00\""`
}

// Normalize cleans up common model-output formatting issues.
func (p *AllocationProposal) Normalize() {
	p.OrderCode = strings.TrimSpace(p.OrderCode)
	for i := range p.Allocations {
		line := &p.Allocations[i]
		line.BudgetCode = strings.TrimSpace(line.BudgetCode)
		line.Percentage = strings.TrimSuffix(strings.TrimSpace(line.Percentage), "%")
		if line.Percentage == "" || strings.ToLower(line.Percentage) == "null" {
			line.Percentage = "0"
		}
	}
}

// Validate parses the proposal into allocation inputs and runs the standard
// allocation checks. Returns the parsed inputs on success.
func (p *AllocationProposal) Validate() ([]AllocationInput, error) {
	if p.OrderCode == "" {
		return nil, validationErrorf("order_code", "proposal must name an order code")
	}
	inputs := make([]AllocationInput, 0, len(p.Allocations))
	for _, line := range p.Allocations {
		pct, err := decimal.NewFromString(line.Percentage)
		if err != nil {
			return nil, validationErrorf("percentage", "invalid percentage %q for budget code %s", line.Percentage, line.BudgetCode)
		}
		inputs = append(inputs, AllocationInput{BudgetCode: line.BudgetCode, Percentage: pct})
	}
	if err := ValidateAllocations(inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"eps-procurement/internal/app"
	"eps-procurement/internal/core"

	"github.com/shopspring/decimal"
)

// Run executes a one-shot CLI command and exits.
// args is os.Args[1:] — the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string) {
	switch args[0] {
	case "sku":
		runSKU(ctx, svc, args[1:])

	case "req", "requirement":
		runRequirement(ctx, svc, args[1:])

	case "split":
		if len(args) < 3 {
			log.Fatal("Usage: app split <requirement> <supplier> [supplier...]")
		}
		result, err := svc.SplitRequirement(ctx, args[1], args[2:])
		if err != nil {
			log.Fatalf("Split failed: %v", err)
		}
		fmt.Printf("Requirement %s split into %d orders:\n", result.RequirementCode, len(result.Orders))
		printOrders(result.Orders)

	case "order", "orders":
		runOrder(ctx, svc, args[1:])

	case "allocate", "alloc":
		if len(args) < 3 {
			log.Fatal("Usage: app allocate <order> <budget-code>:<pct> [...]")
		}
		allocations, err := parseAllocations(args[2:])
		if err != nil {
			log.Fatalf("Invalid allocation: %v", err)
		}
		order, err := svc.AllocateBudget(ctx, args[1], allocations)
		if err != nil {
			log.Fatalf("Allocation failed: %v", err)
		}
		printAllocations(order)

	case "close":
		if len(args) < 2 {
			log.Fatal("Usage: app close <order>")
		}
		order, err := svc.CloseOrder(ctx, args[1])
		if err != nil {
			log.Fatalf("Close failed: %v", err)
		}
		fmt.Printf("Order %s closed.\n", order.OrderCode)

	case "report":
		runReport(ctx, svc, args[1:])

	case "assist", "a":
		if len(args) < 2 {
			log.Fatal("Usage: app assist \"<allocation instruction>\"")
		}
		proposal, err := svc.InterpretAllocation(ctx, args[1])
		if err != nil {
			log.Fatalf("Agent error: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(proposal)

	case "commit":
		var proposal core.AllocationProposal
		if err := json.NewDecoder(os.Stdin).Decode(&proposal); err != nil {
			log.Fatalf("Invalid JSON: %v", err)
		}
		order, err := svc.CommitProposal(ctx, proposal)
		if err != nil {
			log.Fatalf("Commit failed: %v", err)
		}
		fmt.Printf("Allocation committed for %s.\n", order.OrderCode)
		printAllocations(order)

	default:
		log.Fatalf("Unknown command: %s\nAvailable: sku, req, split, order, allocate, close, report, assist, commit", args[0])
	}
}

func runSKU(ctx context.Context, svc app.ApplicationService, args []string) {
	if len(args) == 0 {
		log.Fatal("Usage: app sku <list|add|price|history> ...")
	}
	switch args[0] {
	case "list":
		supplier := ""
		if len(args) > 1 {
			supplier = args[1]
		}
		result, err := svc.ListSKUs(ctx, supplier)
		if err != nil {
			log.Fatalf("Failed to list SKUs: %v", err)
		}
		printSKUs(result.SKUs)

	case "add":
		if len(args) < 5 {
			log.Fatal("Usage: app sku add <code> <name> <price> <supplier> [category]")
		}
		price, err := decimal.NewFromString(args[3])
		if err != nil {
			log.Fatalf("Invalid price %q: %v", args[3], err)
		}
		req := app.CreateSKURequest{SKUCode: args[1], Name: args[2], UnitPrice: price, Supplier: args[4]}
		if len(args) > 5 {
			req.Category = args[5]
		}
		sku, err := svc.CreateSKU(ctx, req)
		if err != nil {
			log.Fatalf("Failed to create SKU: %v", err)
		}
		fmt.Printf("Created SKU %s (id %d).\n", sku.SKUCode, sku.ID)

	case "price":
		if len(args) < 3 {
			log.Fatal("Usage: app sku price <sku> <new-price> [actor]")
		}
		price, err := decimal.NewFromString(args[2])
		if err != nil {
			log.Fatalf("Invalid price %q: %v", args[2], err)
		}
		actor := os.Getenv("USER")
		if len(args) > 3 {
			actor = args[3]
		}
		sku, err := svc.ChangePrice(ctx, args[1], app.ChangePriceRequest{NewPrice: price, Actor: actor})
		if err != nil {
			log.Fatalf("Price change failed: %v", err)
		}
		fmt.Printf("SKU %s now priced at %s.\n", sku.SKUCode, sku.UnitPrice.StringFixed(2))

	case "history":
		if len(args) < 2 {
			log.Fatal("Usage: app sku history <sku>")
		}
		result, err := svc.GetPriceHistory(ctx, args[1])
		if err != nil {
			log.Fatalf("Failed to get history: %v", err)
		}
		fmt.Printf("Price history for %s (current %s):\n", result.SKU.SKUCode, result.SKU.UnitPrice.StringFixed(2))
		for _, h := range result.History {
			fmt.Printf("  %s  %s -> %s  by %s\n",
				h.ChangedAt.Format("2006-01-02 15:04:05"), h.OldPrice.StringFixed(2), h.NewPrice.StringFixed(2), h.ChangedBy)
		}

	default:
		log.Fatalf("Unknown sku command: %s", args[0])
	}
}

func runRequirement(ctx context.Context, svc app.ApplicationService, args []string) {
	if len(args) == 0 {
		log.Fatal("Usage: app req <create|show|list|config|delete|purge> ...")
	}
	switch args[0] {
	case "create":
		if len(args) < 3 {
			log.Fatal("Usage: app req create <code> <jira-case> [description]")
		}
		req := app.CreateRequirementRequest{RequirementCode: args[1], JiraCase: args[2]}
		if len(args) > 3 {
			req.Description = strings.Join(args[3:], " ")
		}
		r, err := svc.CreateRequirement(ctx, req)
		if err != nil {
			log.Fatalf("Failed to create requirement: %v", err)
		}
		fmt.Printf("Created requirement %s (id %d).\n", r.RequirementCode, r.ID)

	case "show":
		if len(args) < 2 {
			log.Fatal("Usage: app req show <requirement>")
		}
		r, err := svc.GetRequirement(ctx, args[1])
		if err != nil {
			log.Fatalf("Failed to get requirement: %v", err)
		}
		printRequirement(r)

	case "list":
		status := ""
		if len(args) > 1 {
			status = args[1]
		}
		result, err := svc.ListRequirements(ctx, status)
		if err != nil {
			log.Fatalf("Failed to list requirements: %v", err)
		}
		for _, r := range result.Requirements {
			fmt.Printf("  %-20s %-10s %s\n", r.RequirementCode, r.Status, r.JiraCase)
		}

	case "config":
		if len(args) < 4 {
			log.Fatal("Usage: app req config <requirement> <name> <sku>:<qty> [...]")
		}
		items, err := parseItems(args[3:])
		if err != nil {
			log.Fatalf("Invalid item: %v", err)
		}
		cfg, err := svc.AddConfiguration(ctx, app.AddConfigurationRequest{
			RequirementRef: args[1],
			ConfigName:     args[2],
			Items:          items,
		})
		if err != nil {
			log.Fatalf("Failed to add configuration: %v", err)
		}
		fmt.Printf("Added configuration %q with %d items, total %s.\n",
			cfg.ConfigName, len(cfg.Items), cfg.TotalPrice.StringFixed(2))

	case "delete":
		if len(args) < 2 {
			log.Fatal("Usage: app req delete <requirement>")
		}
		if err := svc.DeleteRequirement(ctx, args[1]); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Println("Requirement deleted.")

	case "purge":
		if len(args) < 2 {
			log.Fatal("Usage: app req purge <requirement>")
		}
		if !confirm(fmt.Sprintf("Cascade-delete requirement %s and ALL its orders?", args[1])) {
			fmt.Println("Cancelled.")
			return
		}
		stats, err := svc.CascadeDeleteRequirement(ctx, args[1])
		if err != nil {
			log.Fatalf("Cascade delete failed: %v", err)
		}
		fmt.Printf("Deleted %d configurations, %d items, %d orders, %d order items, %d allocations.\n",
			stats.Configurations, stats.ConfigurationItems, stats.Orders, stats.OrderItems, stats.BudgetAllocations)

	default:
		log.Fatalf("Unknown req command: %s", args[0])
	}
}

func runOrder(ctx context.Context, svc app.ApplicationService, args []string) {
	if len(args) == 0 || args[0] == "list" {
		status := ""
		if len(args) > 1 {
			status = args[1]
		}
		result, err := svc.ListOrders(ctx, status)
		if err != nil {
			log.Fatalf("Failed to list orders: %v", err)
		}
		printOrders(result.Orders)
		return
	}
	if args[0] == "show" {
		if len(args) < 2 {
			log.Fatal("Usage: app order show <order>")
		}
		order, err := svc.GetOrder(ctx, args[1])
		if err != nil {
			log.Fatalf("Failed to get order: %v", err)
		}
		printOrderDetail(order)
		return
	}
	log.Fatalf("Unknown order command: %s", args[0])
}

func runReport(ctx context.Context, svc app.ApplicationService, args []string) {
	if len(args) == 0 {
		log.Fatal("Usage: app report <suppliers|budget|skus> [args]")
	}
	from := os.Getenv("REPORT_FROM")
	to := os.Getenv("REPORT_TO")

	switch args[0] {
	case "suppliers":
		result, err := svc.SupplierReport(ctx, from, to)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		printTable(core.SupplierReportTable(result.Stats))

	case "budget":
		code := ""
		if len(args) > 1 {
			code = args[1]
		}
		result, err := svc.BudgetReport(ctx, code, from, to)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		printTable(core.BudgetReportTable(result.Stats))

	case "skus":
		result, err := svc.SKUReport(ctx, from, to)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		printTable(core.SKUReportTable(result.Stats))

	default:
		log.Fatalf("Unknown report: %s", args[0])
	}
}

func printTable(t core.ReportTable) {
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = len(col)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	printRow := func(cells []string) {
		fmt.Print(" ")
		for i, cell := range cells {
			fmt.Printf(" %-*s", widths[i], cell)
		}
		fmt.Println()
	}
	printRow(t.Columns)
	total := len(t.Columns) + 1
	for _, w := range widths {
		total += w + 1
	}
	fmt.Println(strings.Repeat("-", total))
	for _, row := range t.Rows {
		printRow(row)
	}
}

// parseItems turns "<sku>:<qty>" arguments into item requests.
func parseItems(args []string) ([]app.ConfigurationItemRequest, error) {
	items := make([]app.ConfigurationItemRequest, 0, len(args))
	for _, arg := range args {
		ref, qtyStr, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("expected <sku>:<qty>, got %q", arg)
		}
		var qty int
		if _, err := fmt.Sscanf(qtyStr, "%d", &qty); err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", arg, err)
		}
		items = append(items, app.ConfigurationItemRequest{SKURef: ref, Quantity: qty})
	}
	return items, nil
}

// parseAllocations turns "<budget-code>:<pct>" arguments into allocation inputs.
func parseAllocations(args []string) ([]core.AllocationInput, error) {
	allocations := make([]core.AllocationInput, 0, len(args))
	for _, arg := range args {
		code, pctStr, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("expected <budget-code>:<pct>, got %q", arg)
		}
		pct, err := decimal.NewFromString(pctStr)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %q: %w", arg, err)
		}
		allocations = append(allocations, core.AllocationInput{BudgetCode: code, Percentage: pct})
	}
	return allocations, nil
}

func confirm(question string) bool {
	fmt.Printf("%s (y/n): ", question)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func printSKUs(skus []core.SKU) {
	fmt.Printf("  %-20s %-30s %-12s %12s\n", "CODE", "NAME", "SUPPLIER", "PRICE")
	fmt.Println(strings.Repeat("-", 78))
	for _, s := range skus {
		fmt.Printf("  %-20s %-30s %-12s %12s\n", s.SKUCode, s.Name, s.Supplier, s.UnitPrice.StringFixed(2))
	}
}

func printRequirement(r *core.Requirement) {
	fmt.Printf("Requirement %s [%s]  jira=%s\n", r.RequirementCode, r.Status, r.JiraCase)
	if r.Description != "" {
		fmt.Printf("  %s\n", r.Description)
	}
	for _, cfg := range r.Configurations {
		fmt.Printf("  Configuration %q  total %s\n", cfg.ConfigName, cfg.TotalPrice.StringFixed(2))
		for _, it := range cfg.Items {
			fmt.Printf("    sku %-6d qty %-4d @ %-12s = %s\n",
				it.SKUID, it.Quantity, it.UnitPrice.StringFixed(2), it.Subtotal.StringFixed(2))
		}
	}
}

func printOrders(orders []core.EPSOrder) {
	fmt.Printf("  %-42s %-12s %-10s %15s\n", "ORDER CODE", "SUPPLIER", "STATUS", "TOTAL")
	fmt.Println(strings.Repeat("-", 84))
	for _, o := range orders {
		fmt.Printf("  %-42s %-12s %-10s %15s\n", o.OrderCode, o.Supplier, o.Status, o.TotalAmount.StringFixed(2))
	}
}

func printOrderDetail(o *core.EPSOrder) {
	fmt.Printf("Order %s [%s]  supplier=%s  total=%s\n",
		o.OrderCode, o.Status, o.Supplier, o.TotalAmount.StringFixed(2))
	for _, it := range o.Items {
		fmt.Printf("  sku %-6d qty %-4d @ %-12s = %s\n",
			it.SKUID, it.Quantity, it.UnitPrice.StringFixed(2), it.Subtotal.StringFixed(2))
	}
	printAllocations(o)
}

func printAllocations(o *core.EPSOrder) {
	if len(o.Allocations) == 0 {
		return
	}
	fmt.Println("  Budget allocations:")
	for _, a := range o.Allocations {
		fmt.Printf("    %-20s %7s%% = %s\n", a.BudgetCode, a.Percentage.StringFixed(2), a.Amount.StringFixed(2))
	}
}

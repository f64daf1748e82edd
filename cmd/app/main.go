package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"eps-procurement/internal/adapters/cli"
	"eps-procurement/internal/ai"
	"eps-procurement/internal/app"
	"eps-procurement/internal/core"
	"eps-procurement/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	guard := core.NewIntegrityGuard(pool)
	pricing := core.NewPricingEngine(pool)
	catalog := core.NewCatalogService(pool, guard)
	requirements := core.NewRequirementService(pool, guard, pricing)
	orders := core.NewOrderService(pool)
	stats := core.NewStatisticsAggregator(pool)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set")
	}
	agent := ai.NewAgent(apiKey)

	svc := app.NewAppService(catalog, requirements, orders, guard, stats, agent)

	if len(os.Args) > 1 {
		cli.Run(ctx, svc, os.Args[1:])
		return
	}
	runREPL(ctx, svc)
}

func runREPL(ctx context.Context, svc app.ApplicationService) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("EPS Procurement REPL")
	fmt.Println("Type 'orders' to see pending orders, 'help' for commands.")
	fmt.Println("Anything else is sent to the AI budget assistant.")
	fmt.Println("--------------------")

	for {
		fmt.Print("\n> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit":
			return
		case "help":
			fmt.Println("Available commands: orders, requirements, help, exit, quit")
			fmt.Println("Any other input is interpreted as a budget allocation instruction.")
			continue
		case "orders":
			result, err := svc.ListOrders(ctx, "")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for _, o := range result.Orders {
				fmt.Printf("  %-42s %-12s %-10s %15s\n",
					o.OrderCode, o.Supplier, o.Status, o.TotalAmount.StringFixed(2))
			}
			continue
		case "requirements":
			result, err := svc.ListRequirements(ctx, "")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for _, r := range result.Requirements {
				fmt.Printf("  %-20s %-10s %s\n", r.RequirementCode, r.Status, r.JiraCase)
			}
			continue
		}

		fmt.Println("[AI] Interpreting allocation instruction...")
		proposal, err := svc.InterpretAllocation(ctx, input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		printProposal(proposal)
		if proposal.Confidence < 0.6 {
			fmt.Println("\nWARNING: Low confidence proposal.")
		}

		fmt.Print("\nApply this allocation? (y/n): ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(strings.ToLower(choice))
		if choice != "y" && choice != "yes" {
			fmt.Println("Allocation cancelled.")
			continue
		}

		order, err := svc.CommitProposal(ctx, *proposal)
		if err != nil {
			fmt.Printf("Allocation FAILED: %v\n", err)
			continue
		}
		fmt.Printf("Allocation COMMITTED for %s.\n", order.OrderCode)
	}
}

func printProposal(p *core.AllocationProposal) {
	fmt.Printf("\nORDER:      %s\n", p.OrderCode)
	fmt.Printf("REASONING:  %s\n", p.Reasoning)
	fmt.Printf("CONFIDENCE: %.2f\n", p.Confidence)
	fmt.Println("ALLOCATIONS:")
	for _, line := range p.Allocations {
		fmt.Printf("  %-20s %s%%\n", line.BudgetCode, line.Percentage)
	}
}

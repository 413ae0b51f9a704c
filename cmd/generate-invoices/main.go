// Command generate-invoices runs one invoice generation pass for the
// configured target month and prints a summary.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/estatebill/internal/approval"
	"github.com/smallbiznis/estatebill/internal/audit"
	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/billingprofile"
	"github.com/smallbiznis/estatebill/internal/clock"
	"github.com/smallbiznis/estatebill/internal/config"
	"github.com/smallbiznis/estatebill/internal/estate"
	"github.com/smallbiznis/estatebill/internal/generation"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
	"github.com/smallbiznis/estatebill/internal/invoice"
	"github.com/smallbiznis/estatebill/internal/migration"
	"github.com/smallbiznis/estatebill/internal/observability"
	"github.com/smallbiznis/estatebill/internal/ratelimit"
	"github.com/smallbiznis/estatebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	os.Exit(run(appOptions()...))
}

func appOptions() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		migration.Module,
		clock.Module,
		authorization.Module,
		audit.Module,
		estate.Module,
		approval.Module,
		billingprofile.Module,
		invoice.Module,
		ratelimit.Module,
		generation.Module,
	}
}

// run owns the app lifecycle so deferred shutdown completes before exit.
func run(options ...fx.Option) int {
	var (
		svc     generationdomain.Service
		billing *config.BillingConfigHolder
		clk     clock.Clock
	)

	app := fx.New(
		fx.NopLogger,
		fx.Options(options...),
		fx.Populate(&svc, &billing, &clk),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	policy := billing.Get()
	target, err := policy.Target(clk.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid target month: %v\n", err)
		return 1
	}

	ctx := auditcontext.WithActor(context.Background(), auditcontext.ActorTypeSystem, "")
	ctx = auditcontext.WithRequestID(ctx, ulid.Make().String())
	fmt.Printf("Generating invoices for %s\n", target.Format("January 2006"))

	summary, err := svc.Run(ctx, generationdomain.Options{
		Target:           target,
		TriggerType:      generationdomain.TriggerManual,
		BillVacantHouses: policy.BillVacantHouses,
		DueWindowDays:    policy.DueWindowDays,
	})
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		return 1
	}
	return 0
}

func printSummary(summary *generationdomain.RunSummary) {
	log := summary.Log
	fmt.Println()
	fmt.Printf("Period:    %s\n", log.TargetPeriod)
	fmt.Printf("Generated: %d\n", log.GeneratedCount)
	fmt.Printf("Skipped:   %d\n", log.SkippedCount)
	fmt.Printf("Errors:    %d\n", log.ErrorCount)
	fmt.Printf("Duration:  %dms\n", log.DurationMS)

	for _, inv := range summary.Generated {
		fmt.Printf("  + %s  house %s  %s\n", inv.InvoiceNumber, inv.HouseNumber, inv.AmountDue.StringFixed(2))
	}

	if skips := summary.Skips(); len(skips) > 0 {
		counts := map[string]int{}
		for _, skip := range skips {
			counts[skip.Reason]++
		}
		reasons := make([]string, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		fmt.Println("Skip reasons:")
		for _, reason := range reasons {
			fmt.Printf("  %-24s %d\n", reason, counts[reason])
		}
	}

	for _, houseErr := range summary.Errors() {
		fmt.Printf("  ! house %s: %s\n", houseErr.HouseNumber, houseErr.Error)
	}
}

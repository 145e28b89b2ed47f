package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/casebill/internal/clock"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRecurringCmd() *cobra.Command {
	recurringCmd := &cobra.Command{
		Use:   "recurring",
		Short: "Work with recurring invoice schedules",
	}

	var date string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate invoices for every schedule due on the given date",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc recurringdomain.Service
				clk clock.Clock
			)
			app := fx.New(infrastructure(), billing(), fx.Populate(&svc, &clk))
			if err := app.Err(); err != nil {
				return err
			}
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			defer app.Stop(context.Background())

			today := clock.Today(clk)
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
				}
				today = parsed.UTC()
			}

			results, err := svc.RunDue(cmd.Context(), today)
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Outcome == recurringdomain.OutcomeFailed {
					failed++
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"date":      today.Format("2006-01-02"),
				"generated": len(results) - failed,
				"failed":    failed,
				"results":   results,
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d recurring invoice(s) failed", failed)
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&date, "date", "", "billing date as YYYY-MM-DD (defaults to today)")

	recurringCmd.AddCommand(runCmd)
	return recurringCmd
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/audit"
	"github.com/smallbiznis/casebill/internal/authorization"
	"github.com/smallbiznis/casebill/internal/caseregistry"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	"github.com/smallbiznis/casebill/internal/currency"
	"github.com/smallbiznis/casebill/internal/events"
	"github.com/smallbiznis/casebill/internal/expense"
	"github.com/smallbiznis/casebill/internal/invoice"
	"github.com/smallbiznis/casebill/internal/observability"
	"github.com/smallbiznis/casebill/internal/payment"
	"github.com/smallbiznis/casebill/internal/providers"
	"github.com/smallbiznis/casebill/internal/rate"
	"github.com/smallbiznis/casebill/internal/recurring"
	"github.com/smallbiznis/casebill/internal/timeentry"
	"github.com/smallbiznis/casebill/pkg/db"
	"github.com/smallbiznis/casebill/pkg/lock"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "casebill",
		Short: "Billing and invoice engine for legal case work",
		Long: `casebill turns logged time and expenses on legal cases into invoices,
tracks their payments and runs recurring billing schedules.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newRecurringCmd(),
	)

	return rootCmd
}

// infrastructure is what every command needs to reach the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// billing wires the domain services shared by the server and the CLI.
func billing() fx.Option {
	return fx.Options(
		lock.Module,
		events.Module,
		audit.Module,
		authorization.Module,
		caseregistry.Module,
		currency.Module,
		rate.Module,
		timeentry.Module,
		expense.Module,
		providers.Module,
		invoice.Module,
		payment.Module,
		recurring.Module,
	)
}

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package main

import (
	"context"
	"time"

	"github.com/smallbiznis/casebill/internal/migration"
	"github.com/smallbiznis/casebill/internal/scheduler"
	"github.com/smallbiznis/casebill/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the recurring billing scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				billing(),
				scheduler.Module,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}

			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
}

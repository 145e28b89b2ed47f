package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/smallbiznis/casebill/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLDB(cmd.Context(), func(db *sql.DB) error {
				if err := migration.RollbackMigrations(db, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSQLDB(cmd.Context(), func(db *sql.DB) error {
					if err := migration.RunMigrations(db); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return nil
				})
			},
		},
		downCmd,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSQLDB(cmd.Context(), func(db *sql.DB) error {
					version, dirty, err := migration.Version(db)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)

	return migrateCmd
}

// withSQLDB starts only the infrastructure graph and hands fn the raw
// connection pool behind it.
func withSQLDB(ctx context.Context, fn func(*sql.DB) error) error {
	var conn *gorm.DB
	app := fx.New(infrastructure(), fx.Populate(&conn))
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(context.Background())

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return fn(sqlDB)
}

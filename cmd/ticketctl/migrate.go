package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ms-ticket-lifecycle/internal/config"
	"ms-ticket-lifecycle/internal/database"
	"ms-ticket-lifecycle/internal/database/migrations"
	"ms-ticket-lifecycle/internal/logger"
)

var migrationsDir string

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "Read migrations from this directory instead of the embedded set")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withRunner(func(r *migrations.Runner, _ []string) error {
				return r.MigrateUp()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: withRunner(func(r *migrations.Runner, _ []string) error {
				return r.MigrateDown()
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: withRunner(func(r *migrations.Runner, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return r.MigrateTo(uint(version))
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			RunE: withRunner(func(r *migrations.Runner, _ []string) error {
				version, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}

func withRunner(fn func(r *migrations.Runner, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.Database.Driver != database.DriverPostgres {
			return fmt.Errorf("migrations target postgres, DB_DRIVER is %q", cfg.Database.Driver)
		}
		log := logger.New(cmd.OutOrStdout())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		bunDB, err := database.Open(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer bunDB.Close()

		dir := migrationsDir
		if dir == "" {
			dir = cfg.Database.MigrationsDir
		}
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: dir}, log)
		defer runner.Close()
		return fn(runner, args)
	}
}

package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/localclaw/claw/internal/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migration management (memory.db and routines.db)",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

// openRunner opens the named database's SQLite file and wires it to its
// embedded migration source (internal/migrations).
func openRunner(db string) (*migrations.Runner, func(), error) {
	dd, err := resolveDataDir()
	if err != nil {
		return nil, nil, err
	}

	var path string
	var src source.Driver
	switch db {
	case "memory":
		path = filepath.Join(dd, "memory.db")
		src, err = migrations.MemorySource()
	case "routines":
		path = filepath.Join(dd, "routines.db")
		src, err = migrations.RoutinesSource()
	default:
		return nil, nil, fmt.Errorf("unknown database %q (want memory or routines)", db)
	}
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	runner, err := migrations.NewRunner(sqlDB, src)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return runner, func() { sqlDB.Close() }, nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up <memory|routines>",
		Short: "Apply all pending migrations to the named database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, closeFn, err := openRunner(args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			if err := runner.Up(); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			v, dirty, _ := runner.Version()
			slog.Info("migration complete", "database", args[0], "version", v, "dirty", dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down <memory|routines>",
		Short: "Roll back migrations on the named database (default: 1 step)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, closeFn, err := openRunner(args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			if steps <= 0 {
				steps = 1
			}
			if err := runner.Down(steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			v, dirty, _ := runner.Version()
			slog.Info("rollback complete", "database", args[0], "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version <memory|routines>",
		Short: "Show the current migration version for the named database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, closeFn, err := openRunner(args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			v, dirty, err := runner.Version()
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Printf("%s: version %d, dirty %v\n", args[0], v, dirty)
			return nil
		},
	}
}

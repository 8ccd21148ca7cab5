package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ClubDues/internal/pkg/database"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the ClubDues SQL migrations",
		Long:         "DB_DRIVER selects migrations/mysql or migrations/postgres. MIGRATIONS_DIR overrides the base directory.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("dir", env.GetEnv("MIGRATIONS_DIR", "migrations"), "base directory of the migration files")

	root.AddCommand(upCmd(), downCmd(), gotoCmd(), forceCmd(), statusCmd())
	return root
}

// withMigrator opens a migrator for the configured database and closes it after fn.
func withMigrator(cmd *cobra.Command, fn func(m *migrate.Migrate) error) error {
	cfg := database.ConfigFromEnv()
	dbURL, err := cfg.MigrateURL()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	source := cfg.MigrationsSource(dir)

	log.Printf("Connecting to %s database: %s@%s:%s/%s", cfg.Driver, cfg.User, cfg.Host, cfg.Port, cfg.Name)

	m, err := migrate.New(source, dbURL)
	if err != nil {
		return fmt.Errorf("initialize migrations from %s: %w", source, err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()
	return fn(m)
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate) error {
				err := m.Up()
				switch {
				case errors.Is(err, migrate.ErrNoChange):
					log.Println("No change: database is already up to date")
				case err != nil:
					return fmt.Errorf("apply migrations: %w", err)
				default:
					log.Println("Migrations applied")
				}
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate) error {
				if err := m.Steps(-1); err != nil {
					return fmt.Errorf("roll back the last migration: %w", err)
				}
				log.Println("Rolled back the last migration")
				return nil
			})
		},
	}
}

func gotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto [version]",
		Short: "Migrate up or down to the given version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version number: %w", err)
			}
			return withMigrator(cmd, func(m *migrate.Migrate) error {
				err := m.Migrate(uint(version))
				switch {
				case errors.Is(err, migrate.ErrNoChange):
					log.Printf("No change: database is already at version %d", version)
				case err != nil:
					return fmt.Errorf("migrate to version %d: %w", version, err)
				default:
					log.Printf("Migrated to version %d", version)
				}
				return nil
			})
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force [version]",
		Short: "Mark a version as applied without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number: %w", err)
			}
			return withMigrator(cmd, func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version %d: %w", version, err)
				}
				log.Printf("Forced version %d", version)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					log.Println("No migrations have been applied yet")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read migration version: %w", err)
				}
				dirtyStatus := ""
				if dirty {
					dirtyStatus = " (dirty)"
				}
				log.Printf("Current migration version: %d%s", version, dirtyStatus)
				return nil
			})
		},
	}
}

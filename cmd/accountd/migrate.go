// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/userauth/accountd/internal/config"
	"github.com/userauth/accountd/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.BackendOpener == nil {
		deps.BackendOpener = store.Open
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
		Long: `Apply pending schema changes. For postgres this runs the embedded SQL
migrations; for mongodb it creates the unique email index. The in-memory
store needs no migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "credential store URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every postgres migration (drops the users table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err //nolint:wrapcheck // already coded by store
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied without running it",
		Long:  `Record VERSION as the applied migration. Use only to recover a dirty database after fixing it by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // already coded by store
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// migrateDatabaseURL loads configuration and returns the store URL.
func migrateDatabaseURL(cmd *cobra.Command) (string, store.Kind, error) {
	cfg, err := config.Load(loadOptions(cmd))
	if err != nil {
		return "", "", err //nolint:wrapcheck // already coded by config
	}
	if cfg.DatabaseURL == "" {
		return "", "", oops.Code("CONFIG_INVALID").With("key", "database_url").
			Errorf("database url is required (--database-url, ACCOUNTD_DATABASE_URL or DATABASE_URL)")
	}
	kind, err := store.KindOf(cfg.DatabaseURL)
	if err != nil {
		return "", "", err //nolint:wrapcheck // already coded by store
	}
	return cfg.DatabaseURL, kind, nil
}

func runMigrateUp(cmd *cobra.Command, deps *MigrateDeps) error {
	databaseURL, kind, err := migrateDatabaseURL(cmd)
	if err != nil {
		return err
	}

	switch kind {
	case store.KindPostgres:
		return withMigrator(cmd, deps, func(m Migrator) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return err //nolint:wrapcheck // already coded by store
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			cmd.Printf("Applying %d migration(s)...\n", len(pending))
			if err := m.Up(); err != nil {
				return err //nolint:wrapcheck // already coded by store
			}
			cmd.Println("Migrations completed successfully")
			return nil
		})
	case store.KindMongo:
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		backend, err := deps.BackendOpener(ctx, databaseURL, store.Options{AutoMigrate: true})
		if err != nil {
			return oops.With("operation", "ensure mongo indexes").Wrap(err)
		}
		backend.Close()
		cmd.Println("Indexes are up to date")
		return nil
	default:
		cmd.Printf("Nothing to migrate for the %s store\n", kind)
		return nil
	}
}

// withMigrator runs fn with a postgres migrator for the configured URL.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	databaseURL, kind, err := migrateDatabaseURL(cmd)
	if err != nil {
		return err
	}
	if kind != store.KindPostgres {
		return oops.Code("MIGRATION_UNSUPPORTED").With("backend", string(kind)).
			Errorf("schema versions are tracked only for postgres")
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(m)
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // already coded by store
	}

	current := "none"
	if version > 0 {
		current = strconv.FormatUint(uint64(version), 10)
		if name, err := store.MigrationName(version); err == nil && name != "" {
			current = name
		}
	}
	if dirty {
		current += " (dirty)"
	}
	cmd.Printf("Current: %s\n", current)

	if len(pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	names := make([]string, 0, len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		names = append(names, name)
	}
	cmd.Printf("Pending: %s\n", strings.Join(names, ", "))
	return nil
}

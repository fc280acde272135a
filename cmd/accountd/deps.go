// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/userauth/accountd/internal/observability"
	"github.com/userauth/accountd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendOpener connects to the credential store.
	// Default: store.Open
	BackendOpener func(ctx context.Context, databaseURL string, opts store.Options) (*store.Backend, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Started is called once both listeners are bound. metricsAddr is ""
	// when the observability server is disabled.
	Started func(apiAddr, metricsAddr string)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a postgres migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// BackendOpener is used to create mongo indexes.
	// Default: store.Open
	BackendOpener func(ctx context.Context, databaseURL string, opts store.Options) (*store.Backend, error)
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/userauth/accountd/internal/store"
)

var (
	testPool  *pgxpool.Pool
	container *tcpostgres.PostgresContainer
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Postgres User Repository Suite")
}

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var err error
	container, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("accountd_test"),
		tcpostgres.WithUsername("accountd"),
		tcpostgres.WithPassword("accountd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	testPool, err = pgxpool.New(ctx, connStr)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if testPool != nil {
		testPool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
})

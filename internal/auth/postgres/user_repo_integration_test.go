// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)
	})

	AfterEach(func() {
		_, err := testPool.Exec(ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	newUser := func(username, email string) *auth.User {
		user, err := auth.NewUser(username, email, "$2a$10$integrationhash")
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	It("round-trips a created user", func() {
		user := newUser("alice", "alice@example.com")
		Expect(repo.Create(ctx, user)).To(Succeed())
		Expect(user.ID).NotTo(BeEmpty())

		byID, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Username).To(Equal("alice"))
		Expect(byID.AvatarURL).To(Equal(auth.AvatarURL("alice@example.com")))
		Expect(byID.IsAdmin).To(BeFalse())
		Expect(byID.CreatedAt).To(BeTemporally("==", user.CreatedAt))

		byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(user.ID))
	})

	It("reports missing users as not found", func() {
		_, err := repo.GetByID(ctx, "01HZX3M5D7Q8W9E0R1T2Y3U4I5")
		Expect(err).To(MatchError(auth.ErrNotFound))

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("enforces case-insensitive email uniqueness", func() {
		Expect(repo.Create(ctx, newUser("alice", "dup@example.com"))).To(Succeed())

		err := repo.Create(ctx, newUser("other", "DUP@example.com"))
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))

		var count int
		Expect(testPool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("admits exactly one of many concurrent registrations", func() {
		const attempts = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				err := repo.Create(ctx, newUser("racer", "race@example.com"))
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
					return
				}
				Expect(err).To(MatchError(auth.ErrDuplicateEmail))
			}()
		}
		wg.Wait()
		Expect(success).To(Equal(1))
	})
})

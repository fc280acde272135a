// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package memory provides an in-process UserRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/auth"
)

// UserRepository stores users in maps guarded by a single mutex, so email
// uniqueness holds under concurrent Create calls.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*auth.User
	byEmail map[string]string
	now     func() time.Time
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Create implements auth.UserRepository.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").Wrap(err)
	}

	email := auth.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return oops.Code("USER_DUPLICATE_EMAIL").With("email", email).Wrap(auth.ErrDuplicateEmail)
	}

	user.ID = ulid.Make().String()
	user.Email = email
	user.CreatedAt = r.now().UTC().Truncate(time.Millisecond)

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[email] = stored.ID
	return nil
}

// GetByID implements auth.UserRepository.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("id", id).Wrap(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	found := *user
	return &found, nil
}

// GetByEmail implements auth.UserRepository.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("email", email).Wrap(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	found := *r.byID[id]
	return &found, nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

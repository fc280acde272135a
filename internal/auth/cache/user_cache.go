// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package cache provides a Redis read-through cache in front of an
// auth.UserRepository. Users are never updated after creation, so entries
// only expire and are never invalidated. Password hashes are never written
// to Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/userauth/accountd/internal/auth"
)

// DefaultTTL bounds how long a deleted user can still resolve from cache.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "accountd:user:"

// cachedUser is the profile part of a user.
type cachedUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository caches GetByID lookups of the wrapped repository.
// Redis failures are logged and fall through to the wrapped repository.
type UserRepository struct {
	next   auth.UserRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository wraps next with a cache stored in client.
// A non-positive ttl selects DefaultTTL; a nil logger selects slog.Default.
func NewUserRepository(next auth.UserRepository, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *UserRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{next: next, client: client, ttl: ttl, logger: logger}
}

// Create passes through to the wrapped repository.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	return r.next.Create(ctx, user) //nolint:wrapcheck // decorator is transparent
}

// GetByEmail passes through; login must see the stored hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.next.GetByEmail(ctx, email) //nolint:wrapcheck // decorator is transparent
}

// GetByID serves from cache when possible. Users served from cache have an
// empty PasswordHash; credential checks go through GetByEmail.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	key := keyPrefix + id

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if jsonErr := json.Unmarshal(data, &cu); jsonErr == nil {
			return cu.toUser(), nil
		}
		r.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		r.logger.WarnContext(ctx, "user cache read failed", "key", key, "error", err)
	}

	user, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err //nolint:wrapcheck // decorator is transparent
	}

	if data, err := json.Marshal(fromUser(user)); err == nil {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.logger.WarnContext(ctx, "user cache write failed", "key", key, "error", err)
		}
	}
	return user, nil
}

func fromUser(u *auth.User) cachedUser {
	return cachedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

func (c cachedUser) toUser() *auth.User {
	return &auth.User{
		ID:        c.ID,
		Username:  c.Username,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
		IsAdmin:   c.IsAdmin,
		CreatedAt: c.CreatedAt,
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repository needs.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectUserColumns = `
	SELECT id, username, email, password_hash, avatar_url, is_admin, created_at
	FROM users`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// Create inserts the user. Uniqueness is enforced by the users_email_unique index.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	id := ulid.Make().String()
	createdAt := r.now().UTC().Truncate(time.Microsecond)
	email := auth.NormalizeEmail(user.Email)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, avatar_url, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, user.Username, email, user.PasswordHash, user.AvatarURL, user.IsAdmin, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("email", email).
				With("constraint", pgErr.ConstraintName).
				Wrap(errors.Join(auth.ErrDuplicateEmail, err))
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", email).
			Wrap(err)
	}

	user.ID = id
	user.Email = email
	user.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, selectUserColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, selectUserColumns+` WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans one row; callers handle pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarURL, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	return &u, nil
}

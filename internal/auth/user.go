// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// User represents a registered account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	AvatarURL    string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Profile is the public projection of a User. It never carries the password hash.
type Profile struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
	IsAdmin   bool
	CreatedAt time.Time
}

// NewUser builds a non-admin user from a username, email and an already
// computed password hash. ID and CreatedAt are left for the repository.
func NewUser(username, email, passwordHash string) (*User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if err := validateIdentity(username, email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeValidationFailed).With("field", "password").Errorf("password hash cannot be empty")
	}

	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		AvatarURL:    AvatarURL(email),
	}, nil
}

// Profile returns the public projection of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// validateIdentity checks an already trimmed username and normalized email.
func validateIdentity(username, email string) error {
	if username == "" {
		return oops.Code(CodeValidationFailed).With("field", "username").Errorf("username cannot be empty")
	}
	if email == "" {
		return oops.Code(CodeValidationFailed).With("field", "email").Errorf("email cannot be empty")
	}
	return nil
}

// NormalizeEmail trims and lowercases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user and assigns its ID and CreatedAt.
	// Returns ErrDuplicateEmail if a user with the same email exists.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
const DefaultBcryptCost = 10

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher using bcrypt with a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. The cost must lie within bcrypt's
// supported range.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_INVALID_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", oops.Code(CodeValidationFailed).
			With("field", "password").
			With("max_bytes", MaxPasswordBytes).
			Public(fmt.Sprintf("Password must be at most %d bytes.", MaxPasswordBytes)).
			Errorf("password exceeds %d bytes", MaxPasswordBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("cost", h.cost).Wrap(err)
	}
	return string(hash), nil
}

// Verify compares the password against a bcrypt hash in constant time.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

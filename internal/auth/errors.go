// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by a UserRepository when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Error codes for outcomes callers are expected to branch on.
// Anything carrying a different code is an internal failure.
const (
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidRequest     = "AUTH_INVALID_REQUEST"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
)

// hasCode reports whether err carries code as its innermost oops code.
func hasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}

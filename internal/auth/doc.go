// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package auth provides user accounts and stateless session tokens.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the username,
// email and password hash and derives the avatar URL. The ID and CreatedAt
// fields are assigned by the UserRepository on Create.
//
// # Services
//
// Service coordinates registration, login and identity lookup on top of a
// UserRepository, a PasswordHasher and a TokenCodec. It is created with
// NewService, which validates its dependencies.
//
// # Identity
//
// Verified session claims travel in a context.Context. WithIdentity is only
// called by the request gate; handlers read the claims back with
// IdentityFromContext.
package auth

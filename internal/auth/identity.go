// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import "context"

type identityKey struct{}

// WithIdentity returns a context carrying verified session claims.
func WithIdentity(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, claims)
}

// IdentityFromContext returns the claims attached by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(identityKey{}).(*Claims)
	return claims, ok && claims != nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of a session token issued at login.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the identity carried by a session token.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock replaces the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec. An empty secret is rejected so a
// misconfigured process fails at startup instead of accepting any token.
func NewTokenCodec(secret string, opts ...TokenOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, oops.Code("AUTH_SECRET_MISSING").Errorf("token signing secret is required")
	}

	c := &TokenCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token for the claims that expires ttl after now.
// IssuedAt and ExpiresAt on the passed claims are overwritten.
func (c *TokenCodec) Sign(claims Claims, ttl time.Duration) (string, error) {
	issued := c.now()
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("user_id", claims.UserID).Wrap(err)
	}
	return signed, nil
}

// Verify parses a token and checks its algorithm, signature and expiry.
// All failures carry CodeInvalidToken; the "reason" context value tells them apart.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).With("reason", verifyFailureReason(err)).Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code(CodeInvalidToken).With("reason", "invalid").Errorf("token is not valid")
	}
	return claims, nil
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}

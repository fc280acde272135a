// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/auth"
)

// HeaderAuthToken carries the session token on protected requests.
const HeaderAuthToken = "x-auth-token"

// TokenVerifier checks a session token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Gate rejects requests without a valid session token. Verified claims are
// attached to the request context with auth.WithIdentity; nothing else about
// the request is changed.
func Gate(tokens TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw := req.Header.Get(HeaderAuthToken)
			if raw == "" {
				return oops.Code(auth.CodeTokenMissing).Errorf("no token provided")
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				return oops.Code(auth.CodeInvalidToken).Wrap(err)
			}

			c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), claims)))
			return next(c)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/auth"
)

// AccountService is the account behaviour the handlers expose.
type AccountService interface {
	Register(ctx context.Context, username, email, password string) error
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, claims *auth.Claims) (*auth.Profile, error)
}

func (s *Server) welcome(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Msg: msgWelcome})
}

func (s *Server) register(c echo.Context) error {
	var req RegisterRequest
	err := s.decode(c, "register.schema.json", &req)
	if err == nil {
		err = s.accounts.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	}
	s.metrics.RecordAuth("register", authOutcome(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, envelope{Msg: msgRegistered, Status: statusSuccess})
}

func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	var result *auth.LoginResult
	err := s.decode(c, "login.schema.json", &req)
	if err == nil {
		result, err = s.accounts.Login(c.Request().Context(), req.Email, req.Password)
	}
	s.metrics.RecordAuth("login", authOutcome(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{
		Msg:   msgLoginSuccess,
		Token: result.Token,
		Data:  newProfileView(result.Profile),
	})
}

func (s *Server) me(c echo.Context) error {
	ctx := c.Request().Context()
	claims, _ := auth.IdentityFromContext(ctx)

	profile, err := s.accounts.CurrentUser(ctx, claims)
	s.metrics.RecordAuth("me", authOutcome(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{User: newProfileView(*profile), Msg: msgSuccess})
}

// decode reads the request body and validates it against the named schema.
func (s *Server) decode(c echo.Context, schema string, dst any) error {
	v, err := validatorFor(schema)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return oops.Code("HTTP_READ_BODY_FAILED").Wrap(err)
	}
	return v.Decode(body, dst)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// TokenIssuer signs session claims.
type TokenIssuer interface {
	Sign(claims Claims, ttl time.Duration) (string, error)
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token   string
	Profile Profile
}

// Service provides registration, login and identity lookup.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTokenTTL sets the lifetime of tokens issued by Login.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// WithLogger sets the logger used for account events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	}

	s := &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: DefaultTokenTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.tokenTTL < 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("ttl", s.tokenTTL).Errorf("token ttl cannot be negative")
	}
	return s, nil
}

// Register creates a new account. Input shape is validated by the caller;
// the repository's unique email constraint decides concurrent races.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	email = NormalizeEmail(email)
	if err := validateIdentity(strings.TrimSpace(username), email); err != nil {
		return err
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return oops.Code(CodeEmailTaken).With("email", email).Errorf("user already exists")
	case !errors.Is(err, ErrNotFound):
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if hasCode(err, CodeValidationFailed) {
			return err
		}
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, hash)
	if err != nil {
		return err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return oops.Code(CodeEmailTaken).With("email", email).Errorf("user already exists")
		}
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return nil
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).With("email", email).Errorf("user not found")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(err)
	}
	if !valid {
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID, "reason", "invalid_password")
		return nil, oops.Code(CodeInvalidCredentials).With("user_id", user.ID).Errorf("invalid password")
	}

	token, err := s.tokens.Sign(Claims{UserID: user.ID, Email: user.Email}, s.tokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "sign token").
			With("user_id", user.ID).
			Wrap(err)
	}

	s.logger.DebugContext(ctx, "login succeeded", "user_id", user.ID)
	return &LoginResult{Token: token, Profile: user.Profile()}, nil
}

// CurrentUser resolves verified claims to the user's profile.
func (s *Service) CurrentUser(ctx context.Context, claims *Claims) (*Profile, error) {
	if claims == nil || claims.UserID == "" {
		return nil, oops.Code(CodeInvalidRequest).Errorf("claims carry no user id")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).With("user_id", claims.UserID).Errorf("user not found")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", claims.UserID).
			Wrap(err)
	}

	profile := user.Profile()
	return &profile, nil
}

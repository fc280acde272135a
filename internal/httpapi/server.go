// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package httpapi serves the accountd JSON API over HTTP.
//
// Routes:
//
//	GET  /                welcome message
//	POST /users/register  create an account
//	POST /users/login     exchange credentials for a session token
//	GET  /users/me        current user, requires the x-auth-token header
//
// Every failure is answered with {"msg", "data": null, "status": "FAILED"}.
// Client errors use 401; anything unexpected is a 500.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/logging"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit = "64K"

// MetricsRecorder receives per-request and per-operation observations.
type MetricsRecorder interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	RecordAuth(operation, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, string, int, time.Duration) {}
func (nopMetrics) RecordAuth(string, string)                         {}

// Options configures a Server.
type Options struct {
	Accounts AccountService
	Tokens   TokenVerifier
	Logger   *slog.Logger
	Metrics  MetricsRecorder
	// CORSOrigins defaults to every origin.
	CORSOrigins []string
	// ExposeErrors appends the error text to 500 responses.
	ExposeErrors bool
	// BodyLimit uses echo's size syntax ("64K", "1M").
	BodyLimit string
}

// Server is the HTTP API.
type Server struct {
	echo         *echo.Echo
	accounts     AccountService
	logger       *slog.Logger
	metrics      MetricsRecorder
	exposeErrors bool

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// New builds the router and middleware chain.
func New(opts Options) (*Server, error) {
	if opts.Accounts == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("account service is required")
	}
	if opts.Tokens == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("token verifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = DefaultBodyLimit
	}

	// Compile schemas now so a broken schema fails startup, not the first request.
	for _, rs := range requestSchemas {
		if _, err := validatorFor(rs.file); err != nil {
			return nil, err
		}
	}

	s := &Server{
		echo:         echo.New(),
		accounts:     opts.Accounts,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		exposeErrors: opts.ExposeErrors,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		HandleError:   true,
		LogMethod:     true,
		LogURIPath:    true,
		LogRoutePath:  true,
		LogStatus:     true,
		LogLatency:    true,
		LogValuesFunc: s.logRequest,
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, _ []byte) error {
			return oops.Code("HTTP_PANIC").With("path", c.Request().URL.Path).Wrap(err)
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept, HeaderAuthToken},
	}))
	e.Use(middleware.BodyLimit(opts.BodyLimit))

	e.GET("/", s.welcome)
	users := e.Group("/users")
	users.POST("/register", s.register)
	users.POST("/login", s.login)
	users.GET("/me", s.me, Gate(opts.Tokens))

	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) logRequest(c echo.Context, v middleware.RequestLoggerValues) error {
	route := v.RoutePath
	if route == "" || v.Status == http.StatusNotFound {
		route = "unmatched"
	}
	s.metrics.ObserveRequest(v.Method, route, v.Status, v.Latency)

	level := slog.LevelInfo
	if v.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request().Context(), level, "http request",
		"method", v.Method,
		"path", v.URIPath,
		"status", v.Status,
		"latency", v.Latency)
	return nil
}

// Start listens on addr and serves in the background.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
		}
	}

	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

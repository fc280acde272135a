// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/internal/config"
	"github.com/userauth/accountd/internal/httpapi"
	"github.com/userauth/accountd/internal/logging"
	"github.com/userauth/accountd/internal/observability"
	"github.com/userauth/accountd/internal/store"
	"github.com/userauth/accountd/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the account HTTP API and, unless --metrics-addr is empty, the
metrics and health endpoints. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled, a signal
// arrives, or a listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendOpener == nil {
		deps.BackendOpener = store.Open
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}

	cfg, err := config.Load(loadOptions(cmd))
	if err != nil {
		return err //nolint:wrapcheck // already coded by config
	}
	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err //nolint:wrapcheck // already coded by logging
	}
	logger := logging.Setup(logging.Options{
		Service: "accountd",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := deps.BackendOpener(ctx, cfg.DatabaseURL, store.Options{
		DatabaseName:   cfg.DatabaseName,
		AutoMigrate:    cfg.AutoMigrate,
		ConnectTimeout: cfg.ConnectTimeout,
		RedisURL:       cfg.RedisURL,
		CacheTTL:       cfg.ProfileCacheTTL,
		Logger:         logger,
	})
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer backend.Close()

	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return err //nolint:wrapcheck // already coded by auth
	}
	codec, err := auth.NewTokenCodec(cfg.JWTSecret)
	if err != nil {
		return err //nolint:wrapcheck // already coded by auth
	}
	service, err := auth.NewService(backend.Users, hasher, codec,
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithLogger(logger.With("component", "auth")))
	if err != nil {
		return err //nolint:wrapcheck // already coded by auth
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	}

	var obsServer ObservabilityServer
	var metrics httpapi.MetricsRecorder
	metricsAddr := ""
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, backend.Ping, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			sctx, scancel := shutdownCtx()
			defer scancel()
			if err := obsServer.Stop(sctx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics = obsServer.Metrics()
		metricsAddr = obsServer.Addr()
	}

	api, err := httpapi.New(httpapi.Options{
		Accounts:     service,
		Tokens:       codec,
		Logger:       logger.With("component", "http"),
		Metrics:      metrics,
		CORSOrigins:  cfg.CORSOrigins,
		ExposeErrors: cfg.ExposeErrors,
	})
	if err != nil {
		return err //nolint:wrapcheck // already coded by httpapi
	}
	apiErrCh, err := api.Start(cfg.ListenAddr)
	if err != nil {
		return oops.With("operation", "start http server").Wrap(err)
	}

	logger.Info("accountd ready",
		"addr", api.Addr(),
		"backend", string(backend.Kind),
		"metrics_addr", metricsAddr)
	if deps.Started != nil {
		deps.Started(api.Addr(), metricsAddr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "cause", context.Cause(ctx))
	case err, ok := <-apiErrCh:
		if ok && err != nil {
			serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}

	sctx, scancel := shutdownCtx()
	defer scancel()
	if err := api.Stop(sctx); err != nil {
		errutil.LogError(logger, "error stopping http server", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors cancels ctx when a background server fails.
// It exits when an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

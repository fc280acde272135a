// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/internal/auth/cache"
	"github.com/userauth/accountd/internal/auth/memory"
	"github.com/userauth/accountd/internal/auth/mongodb"
	"github.com/userauth/accountd/internal/auth/postgres"
)

// Kind names a credential store backend.
type Kind string

// Supported backends.
const (
	KindPostgres Kind = "postgres"
	KindMongo    Kind = "mongodb"
	KindMemory   Kind = "memory"
)

// DefaultConnectTimeout bounds the startup connection probe.
const DefaultConnectTimeout = 30 * time.Second

// DefaultDatabaseName is the mongo database used when the URL names none.
const DefaultDatabaseName = "accountd"

// Options configures Open.
type Options struct {
	// DatabaseName selects the mongo database. Ignored by other backends.
	DatabaseName string
	// AutoMigrate applies postgres migrations and mongo indexes on open.
	AutoMigrate bool
	// ConnectTimeout bounds the retrying startup probe. Zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// RedisURL enables the read-through user cache when set.
	RedisURL string
	// CacheTTL is the cache entry lifetime. Zero selects cache.DefaultTTL.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Backend is an opened credential store.
type Backend struct {
	Kind  Kind
	Users auth.UserRepository

	pingers []func(context.Context) error
	closers []func()
}

// Ping checks every connection the backend holds. Used for readiness.
func (b *Backend) Ping(ctx context.Context) error {
	for _, ping := range b.pingers {
		if err := ping(ctx); err != nil {
			return oops.Code("STORE_UNAVAILABLE").With("backend", string(b.Kind)).Wrap(err)
		}
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// KindOf reports the backend selected by a database URL scheme.
func KindOf(databaseURL string) (Kind, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", oops.Code("STORE_INVALID_URL").Wrap(err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return KindPostgres, nil
	case "mongodb", "mongodb+srv":
		return KindMongo, nil
	case "memory":
		return KindMemory, nil
	case "":
		return "", oops.Code("STORE_INVALID_URL").Errorf("database url has no scheme")
	default:
		return "", oops.Code("STORE_UNSUPPORTED_SCHEME").With("scheme", u.Scheme).
			Errorf("unsupported database scheme %q", u.Scheme)
	}
}

// Open connects to the backend named by databaseURL, waiting for it to
// become reachable within opts.ConnectTimeout.
func Open(ctx context.Context, databaseURL string, opts Options) (*Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	kind, err := KindOf(databaseURL)
	if err != nil {
		return nil, err
	}

	b := &Backend{Kind: kind}
	switch kind {
	case KindPostgres:
		err = b.openPostgres(ctx, databaseURL, opts)
	case KindMongo:
		err = b.openMongo(ctx, databaseURL, opts)
	case KindMemory:
		b.Users = memory.NewUserRepository()
		opts.Logger.WarnContext(ctx, "using in-memory credential store; users are lost on exit")
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	if opts.RedisURL != "" {
		if err := b.attachCache(ctx, opts); err != nil {
			b.Close()
			return nil, err
		}
	}

	opts.Logger.InfoContext(ctx, "credential store ready", "backend", string(kind), "cache", opts.RedisURL != "")
	return b, nil
}

func (b *Backend) openPostgres(ctx context.Context, databaseURL string, opts Options) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("backend", "postgres").Wrap(err)
	}
	b.closers = append(b.closers, pool.Close)
	b.pingers = append(b.pingers, pool.Ping)

	if err := WaitReady(ctx, opts.ConnectTimeout, pool.Ping, opts.Logger.With("backend", "postgres")); err != nil {
		return err
	}

	if opts.AutoMigrate {
		if err := migrateUp(databaseURL, opts.Logger); err != nil {
			return err
		}
	}

	b.Users = postgres.NewUserRepository(pool)
	return nil
}

func migrateUp(databaseURL string, logger *slog.Logger) (err error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if err := m.Up(); err != nil {
		return err
	}
	logger.Info("applied migrations", "count", len(pending))
	return nil
}

func (b *Backend) openMongo(ctx context.Context, databaseURL string, opts Options) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(databaseURL))
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("backend", "mongodb").Wrap(err)
	}
	b.closers = append(b.closers, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			opts.Logger.Warn("mongo disconnect failed", "error", err)
		}
	})
	ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	b.pingers = append(b.pingers, ping)

	if err := WaitReady(ctx, opts.ConnectTimeout, ping, opts.Logger.With("backend", "mongodb")); err != nil {
		return err
	}

	name := opts.DatabaseName
	if name == "" {
		name = DefaultDatabaseName
	}
	repo := mongodb.NewUserRepository(client.Database(name))
	if opts.AutoMigrate {
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err //nolint:wrapcheck // already coded by the repository
		}
	}
	b.Users = repo
	return nil
}

func (b *Backend) attachCache(ctx context.Context, opts Options) error {
	redisOpts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return oops.Code("STORE_INVALID_URL").With("backend", "redis").Wrap(err)
	}
	client := redis.NewClient(redisOpts)
	b.closers = append(b.closers, func() { _ = client.Close() }) //nolint:errcheck // shutdown path
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	b.pingers = append(b.pingers, ping)

	if err := WaitReady(ctx, opts.ConnectTimeout, ping, opts.Logger.With("backend", "redis")); err != nil {
		return err
	}

	b.Users = cache.NewUserRepository(b.Users, client, opts.CacheTTL, opts.Logger)
	return nil
}

// WaitReady calls ping with exponential backoff until it succeeds, the
// timeout elapses, or ctx is cancelled.
func WaitReady(ctx context.Context, timeout time.Duration, ping func(context.Context) error, logger *slog.Logger) error {
	backoff := retry.NewExponential(100 * time.Millisecond)
	backoff = retry.WithCappedDuration(2*time.Second, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	attempt := 0
	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := ping(attemptCtx); err != nil {
			lastErr = err
			logger.DebugContext(ctx, "store not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if lastErr == nil || errors.Is(err, context.Canceled) {
		lastErr = err
	}
	return oops.Code("STORE_UNAVAILABLE").
		With("attempts", attempt).
		With("timeout", timeout.String()).
		Wrap(lastErr)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/internal/auth/cache"
	"github.com/userauth/accountd/internal/auth/memory"
	"github.com/userauth/accountd/pkg/errutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestKindOf(t *testing.T) {
	tests := []struct {
		url      string
		want     Kind
		wantCode string
	}{
		{"postgres://u:p@localhost:5432/accountd", KindPostgres, ""},
		{"postgresql://localhost/accountd?sslmode=disable", KindPostgres, ""},
		{"mongodb://localhost:27017", KindMongo, ""},
		{"mongodb+srv://cluster0.example.net", KindMongo, ""},
		{"MONGODB://localhost", KindMongo, ""},
		{"memory://", KindMemory, ""},
		{"mysql://localhost/db", "", "STORE_UNSUPPORTED_SCHEME"},
		{"localhost:5432", "", "STORE_UNSUPPORTED_SCHEME"},
		{"/var/lib/db", "", "STORE_INVALID_URL"},
		{"://bad", "", "STORE_INVALID_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := KindOf(tt.url)
			if tt.wantCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, "memory://", Options{Logger: quietLogger})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, KindMemory, b.Kind)
	assert.IsType(t, &memory.UserRepository{}, b.Users)
	assert.NoError(t, b.Ping(ctx))

	user, err := auth.NewUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, b.Users.Create(ctx, user))
	got, err := b.Users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "sqlite://file.db", Options{Logger: quietLogger})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNSUPPORTED_SCHEME")
}

func TestOpen_RedisCache(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)

	b, err := Open(ctx, "memory://", Options{
		Logger:   quietLogger,
		RedisURL: "redis://" + srv.Addr() + "/0",
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &cache.UserRepository{}, b.Users)

	user, err := auth.NewUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, b.Users.Create(ctx, user))

	_, err = b.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, srv.Exists("accountd:user:"+user.ID))

	require.NoError(t, b.Ping(ctx))
	srv.Close()
	err = b.Ping(ctx)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}

func TestOpen_InvalidRedisURL(t *testing.T) {
	_, err := Open(context.Background(), "memory://", Options{
		Logger:   quietLogger,
		RedisURL: "http://not-redis",
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_INVALID_URL")
}

func TestOpen_UnreachableRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := Open(context.Background(), "memory://", Options{
		Logger:         quietLogger,
		RedisURL:       "redis://" + addr,
		ConnectTimeout: 300 * time.Millisecond,
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}

func TestWaitReady(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WaitReady(context.Background(), 5*time.Second, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}, quietLogger)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		start := time.Now()
		err := WaitReady(context.Background(), 250*time.Millisecond, func(context.Context) error {
			return errors.New("connection refused")
		}, quietLogger)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
		assert.Contains(t, err.Error(), "connection refused")
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitReady(ctx, time.Minute, func(ctx context.Context) error {
			return ctx.Err()
		}, quietLogger)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
	})
}

func TestBackend_CloseOrder(t *testing.T) {
	var order []int
	b := &Backend{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}
	b.Close()
	b.Close()
	assert.Equal(t, []int{2, 1}, order)
}

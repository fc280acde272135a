// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/internal/httpapi"
	"github.com/userauth/accountd/internal/store"
)

// testEnv holds a running API backed by real containers.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	postgres  *postgres.PostgresContainer
	redis     testcontainers.Container
	backend   *store.Backend
	server    *httptest.Server
	redisAddr string
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("accountd_test"),
		postgres.WithUsername("accountd"),
		postgres.WithPassword("accountd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.postgres = pg

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.redis = redisC

	env.redisAddr, err = redisC.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
	env.backend, err = store.Open(ctx, connStr, store.Options{
		AutoMigrate:    true,
		ConnectTimeout: 30 * time.Second,
		RedisURL:       env.redisAddr + "/0",
		CacheTTL:       time.Minute,
		Logger:         logger,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hasher, err := auth.NewBcryptHasher(4)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	codec, err := auth.NewTokenCodec("integration-secret")
	if err != nil {
		env.cleanup()
		return nil, err
	}
	service, err := auth.NewService(env.backend.Users, hasher, codec, auth.WithLogger(logger))
	if err != nil {
		env.cleanup()
		return nil, err
	}
	api, err := httpapi.New(httpapi.Options{
		Accounts: service,
		Tokens:   codec,
		Logger:   logger,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.server = httptest.NewServer(api.Handler())
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.backend != nil {
		e.backend.Close()
	}
	if e.redis != nil {
		_ = e.redis.Terminate(context.Background())
	}
	if e.postgres != nil {
		_ = e.postgres.Terminate(context.Background())
	}
	e.cancel()
}

func (e *testEnv) do(method, path, token, body string) (int, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(e.ctx, method, e.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	resp, err := e.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

var _ = Describe("Account flow", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	It("reports postgres as the backend and passes readiness", func() {
		Expect(env.backend.Kind).To(Equal(store.KindPostgres))
		Expect(env.backend.Ping(env.ctx)).To(Succeed())
	})

	It("serves the welcome message", func() {
		status, body := env.do(http.MethodGet, "/", "", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("msg", "Welcome to accountd server!"))
	})

	Describe("registration and login", Ordered, func() {
		var token string

		It("registers a new user", func() {
			status, body := env.do(http.MethodPost, "/users/register", "",
				`{"username":"alice","email":"Alice@Example.com","password":"hunter2"}`)
			Expect(status).To(Equal(http.StatusCreated))
			Expect(body).To(HaveKeyWithValue("status", "SUCCESS"))
		})

		It("rejects a second registration of the same email", func() {
			status, body := env.do(http.MethodPost, "/users/register", "",
				`{"username":"alice2","email":"alice@example.com","password":"other"}`)
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("status", "FAILED"))
		})

		It("rejects a wrong password", func() {
			status, body := env.do(http.MethodPost, "/users/login", "",
				`{"email":"alice@example.com","password":"wrong"}`)
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("msg", "Invalid password"))
		})

		It("logs in with the registered credentials", func() {
			status, body := env.do(http.MethodPost, "/users/login", "",
				`{"email":"alice@example.com","password":"hunter2"}`)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKey("token"))
			token, _ = body["token"].(string)
			Expect(token).NotTo(BeEmpty())
		})

		It("returns the profile for the token and caches it", func() {
			status, body := env.do(http.MethodGet, "/users/me", token, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(HaveKey("user"))
			user, _ := body["user"].(map[string]any)
			Expect(user).To(HaveKeyWithValue("email", "alice@example.com"))
			Expect(user).To(HaveKeyWithValue("username", "alice"))
			Expect(user).NotTo(HaveKey("password"))

			opts, err := redis.ParseURL(env.redisAddr + "/0")
			Expect(err).NotTo(HaveOccurred())
			client := redis.NewClient(opts)
			defer client.Close()
			keys, err := client.Keys(env.ctx, "accountd:user:*").Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(HaveLen(1))
		})

		It("rejects a missing token", func() {
			status, body := env.do(http.MethodGet, "/users/me", "", "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("status", "FAILED"))
		})
	})
})

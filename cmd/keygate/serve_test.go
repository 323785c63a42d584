// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/pkg/errutil"
)

type fakeObservability struct {
	metrics   *observability.Metrics
	readiness observability.ReadinessChecker
	started   bool
	stopped   bool
}

func (f *fakeObservability) Start() (<-chan error, error) {
	f.started = true
	return make(chan error), nil
}

func (f *fakeObservability) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeObservability) Addr() string                    { return "127.0.0.1:0" }
func (f *fakeObservability) Metrics() *observability.Metrics { return f.metrics }

// startServe runs "keygate serve" with args and returns the API base URL.
func startServe(t *testing.T, deps *Deps, args ...string) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	configFile = ""

	listeners := make(chan net.Listener, 1)
	deps.ListenerFactory = func(network, _ string) (net.Listener, error) {
		l, err := net.Listen(network, "127.0.0.1:0")
		if err == nil {
			listeners <- l
		}
		return l, err
	}
	deps.LogOutput = io.Discard

	cmd := newRootCmd(deps)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"serve", "--server-addr=127.0.0.1:0"}, args...))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case l := <-listeners:
		return "http://" + l.Addr().String(), cancel, done
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("serve did not start listening")
	}
	return "", cancel, done
}

func postJSON(t *testing.T, url string, body map[string]string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestServe_MemoryBackendEndToEnd(t *testing.T) {
	obs := &fakeObservability{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	deps := &Deps{
		ObservabilityServerFactory: func(_ string, readiness observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			obs.readiness = readiness
			return obs
		},
	}
	base, cancel, done := startServe(t, deps, "--store-backend=memory", "--sweep-interval=1h")
	defer cancel()

	resp, err := http.Get(base + "/up")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, base+"/api/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "secret123", "password_confirmation": "secret123",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env := postJSON(t, base+"/api/login", map[string]string{"email": "alice@example.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := env["data"].(map[string]any)["token"].(string)

	resp, env = postJSON(t, base+"/api/logout", map[string]string{}, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1100, env["code"])

	assert.True(t, obs.started)
	require.NotNil(t, obs.readiness)
	assert.NoError(t, obs.readiness(context.Background()), "memory backend is always ready")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.True(t, obs.stopped)
}

func TestServe_MetricsDisabled(t *testing.T) {
	deps := &Deps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			t.Fatal("observability server must not be created when metrics.addr is empty")
			return nil
		},
	}
	_, cancel, done := startServe(t, deps, "--store-backend=memory", "--metrics-addr=")
	cancel()
	require.NoError(t, <-done)
}

func TestServe_InvalidConfig(t *testing.T) {
	configFile = ""
	t.Setenv("DATABASE_URL", "")

	cmd := newRootCmd(&Deps{LogOutput: io.Discard})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"serve", "--store-backend=postgres"})

	err := cmd.Execute()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpenBackends_RedisUsesPostgresForUsers(t *testing.T) {
	mr := miniredis.RunT(t)
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Backend = config.BackendRedis
	cfg.Database.URL = "postgres://test/keygate"
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"

	deps := (&Deps{
		PoolFactory: func(_ context.Context, dsn string, _ *slog.Logger) (DBPool, error) {
			assert.Equal(t, cfg.Database.URL, dsn)
			return pool, nil
		},
	}).withDefaults()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := openBackends(context.Background(), &cfg, deps, logger)
	require.NoError(t, err)

	assert.Contains(t, typeName(b.users), "postgres")
	assert.Contains(t, typeName(b.tokens), "redis")
	assert.Contains(t, typeName(b.locker), "redis")

	pool.ExpectPing()
	assert.NoError(t, b.ready(context.Background()))

	mr.Close()
	pool.ExpectPing()
	assert.Error(t, b.ready(context.Background()), "readiness fails when redis is down")

	pool.ExpectClose()
	b.close()
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestOpenBackends_RedisUnreachableClosesPool(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Backend = config.BackendRedis
	cfg.Database.URL = "postgres://test/keygate"
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	deps := (&Deps{
		PoolFactory: func(context.Context, string, *slog.Logger) (DBPool, error) { return pool, nil },
	}).withDefaults()

	pool.ExpectClose()
	_, err = openBackends(context.Background(), &cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func typeName(v any) string {
	return strings.ToLower(fmt.Sprintf("%T", v))
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := connectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, mr.Addr(), client.Options().Addr)

	_, err = connectRedis(context.Background(), "not-a-url")
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "parse url")
}

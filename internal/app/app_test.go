package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/audit"
	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/redis"
	"github.com/dmitrymomot/sessionkit/pkg/scheduler"
	"github.com/dmitrymomot/sessionkit/pkg/session"
	"github.com/dmitrymomot/sessionkit/pkg/token"
)

var laptop = fingerprint.DeviceInfo{DeviceID: "dev-1", DeviceType: "desktop", OS: "macOS", Browser: "Firefox"}

func testSettings(t *testing.T) (Settings, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return Settings{
		App: Config{
			AuditBackend:  BackendMemory,
			TokenFormat:   TokenOpaque,
			PurgeSchedule: "@daily 03:00",
			PurgeTimeout:  time.Minute,
			CloseTimeout:  time.Second,
		},
		Policy: session.DefaultPolicy(),
		Redis: redis.Config{
			ConnectionURL:  "redis://" + mr.Addr() + "/0",
			KeyPrefix:      "test:",
			RetryAttempts:  1,
			ConnectTimeout: time.Second,
		},
		HTTP: httpserver.Config{
			Addr:         "127.0.0.1:0",
			CheckTimeout: 500 * time.Millisecond,
		},
	}, mr
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{AuditBackend: BackendMemory, TokenFormat: TokenOpaque}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "postgres", mutate: func(c *Config) { c.AuditBackend = BackendPostgres }},
		{name: "mongo", mutate: func(c *Config) { c.AuditBackend = BackendMongo }},
		{name: "unknown backend", mutate: func(c *Config) { c.AuditBackend = "sqlite" }, wantErr: ErrUnknownAuditBackend},
		{name: "jwt with key", mutate: func(c *Config) { c.TokenFormat = TokenJWT; c.TokenSigningKey = "k" }},
		{name: "jwt without key", mutate: func(c *Config) { c.TokenFormat = TokenJWT }, wantErr: ErrMissingSigningKey},
		{name: "unknown token format", mutate: func(c *Config) { c.TokenFormat = "paseto" }, wantErr: ErrUnknownTokenFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config.ResetCache()
		t.Cleanup(config.ResetCache)

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, s.App.AuditBackend)
		assert.Equal(t, "@daily 03:00", s.App.PurgeSchedule)
		assert.Equal(t, session.DefaultPolicy(), s.Policy)
		assert.Equal(t, ":9090", s.HTTP.Addr)
	})

	t.Run("reads the environment", func(t *testing.T) {
		config.ResetCache()
		t.Cleanup(config.ResetCache)
		t.Setenv("AUDIT_BACKEND", "postgres")
		t.Setenv("SESSION_MAX_PER_USER", "2")

		s, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, BackendPostgres, s.App.AuditBackend)
		assert.Equal(t, 2, s.Policy.MaxSessionsPerUser)
	})

	t.Run("rejects invalid app config", func(t *testing.T) {
		config.ResetCache()
		t.Cleanup(config.ResetCache)
		t.Setenv("SESSION_TOKEN_FORMAT", "jwt")

		_, err := LoadSettings()
		assert.ErrorIs(t, err, ErrMissingSigningKey)
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		config.ResetCache()
		t.Cleanup(config.ResetCache)
		t.Setenv("SESSION_MAX_PER_USER", "0")

		_, err := LoadSettings()
		assert.ErrorIs(t, err, session.ErrInvalidPolicy)
	})
}

func TestNewMinter(t *testing.T) {
	t.Parallel()

	m, err := newMinter(Config{TokenFormat: TokenOpaque, TokenSize: 32})
	require.NoError(t, err)
	assert.IsType(t, &token.Opaque{}, m)

	m, err = newMinter(Config{TokenFormat: TokenJWT, TokenSigningKey: "secret", TokenIssuer: "sessiond"})
	require.NoError(t, err)
	assert.IsType(t, &token.JWT{}, m)

	_, err = newMinter(Config{TokenFormat: TokenJWT})
	assert.ErrorIs(t, err, ErrMissingSigningKey)

	_, err = newMinter(Config{TokenFormat: "paseto"})
	assert.ErrorIs(t, err, ErrUnknownTokenFormat)
}

func TestNew_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	s, mr := testSettings(t)
	ctx := context.Background()

	a, err := New(ctx, s, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	rec, err := a.Manager().Create(ctx, session.CreateParams{
		TenantID: "t1",
		UserID:   "u1",
		Role:     "member",
		Device:   laptop,
		IP:       "203.0.113.10",
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:rec:"+rec.ID), "record should live under the configured prefix")

	got, err := a.Manager().Validate(ctx, session.ValidateParams{
		TenantID:    "t1",
		AccessToken: rec.AccessToken,
		Device:      laptop,
		IP:          "203.0.113.10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RequestCount)

	history, err := a.Audit().History(ctx, "t1", rec.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.EventCreated, history[0].Type)
	assert.Equal(t, audit.EventValidated, history[1].Type)

	expected := `
# HELP sessionkit_sessions_created_total Sessions created.
# TYPE sessionkit_sessions_created_total counter
sessionkit_sessions_created_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(a.registry, strings.NewReader(expected), "sessionkit_sessions_created_total"))
}

func TestApp_Purge(t *testing.T) {
	t.Parallel()

	s, _ := testSettings(t)
	a, err := New(context.Background(), s, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NoError(t, a.Purge(context.Background()))
	require.NoError(t, a.scheduler.RunNow(context.Background(), purgeTaskName))

	expected := `
# HELP sessionkit_audit_purge_runs_total Audit purge runs, by result.
# TYPE sessionkit_audit_purge_runs_total counter
sessionkit_audit_purge_runs_total{result="ok"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(a.registry, strings.NewReader(expected), "sessionkit_audit_purge_runs_total"))
	assert.Equal(t, []string{purgeTaskName}, a.scheduler.ListTasks())
}

func TestApp_Readiness(t *testing.T) {
	t.Parallel()

	s, mr := testSettings(t)
	a, err := New(context.Background(), s, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	ready := get("/readyz")
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Equal(t, "READY", ready.Body.String())

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	mr.Close()

	notReady := get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, notReady.Code)
	assert.Contains(t, notReady.Body.String(), "redis")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, _ := testSettings(t)
	a, err := New(context.Background(), s, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(ctx, 2*time.Second)
	defer addrCancel()
	addr := a.server.Addr(addrCtx)
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// connections are released once Run returns
	_, err = a.Manager().Create(context.Background(), session.CreateParams{
		TenantID: "t1",
		UserID:   "u1",
		Device:   laptop,
		IP:       "203.0.113.10",
	})
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid schedule", func(t *testing.T) {
		t.Parallel()
		s, _ := testSettings(t)
		s.App.PurgeSchedule = "@weekly"

		a, err := New(context.Background(), s, discardLogger())
		assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
		assert.Nil(t, a)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()
		s, _ := testSettings(t)
		s.App.AuditBackend = "sqlite"

		_, err := New(context.Background(), s, discardLogger())
		assert.ErrorIs(t, err, ErrUnknownAuditBackend)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		t.Parallel()
		s, mr := testSettings(t)
		mr.Close()

		_, err := New(context.Background(), s, discardLogger())
		assert.Error(t, err)
	})
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, Run([]string{"migrate"}), ErrUnknownCommand)
}

func TestCloseAll_ReverseOrder(t *testing.T) {
	t.Parallel()

	var order []string
	closers := []closer{
		{name: "first", fn: func(context.Context) error { order = append(order, "first"); return nil }},
		{name: "second", fn: func(context.Context) error { order = append(order, "second"); return assert.AnError }},
	}

	err := closeAll(context.Background(), discardLogger(), closers)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"second", "first"}, order)
}

package app

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/lifecycle"
	"warden/cmd/security/password"
	"warden/cmd/security/token"
)

func fastArgon(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WARDEN_ARGON2_ITERATIONS", "1")
	t.Setenv("WARDEN_ARGON2_PARALLELISM", "1")
}

func quietLogger() Logger { return NewLogger(io.Discard, "error", "json") }

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("WARDEN_STORE", "")
	t.Setenv("WARDEN_DATABASE_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "warden", cfg.Schema)
	assert.Equal(t, "warden:audit", cfg.AuditStream)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.True(t, cfg.Metrics)
}

func TestLoadConfig_DatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("WARDEN_STORE", "")
	t.Setenv("WARDEN_DATABASE_URL", "postgres://localhost/warden")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"WARDEN_STORE": "mongo"}},
		{name: "postgres without url", env: map[string]string{"WARDEN_STORE": "postgres", "WARDEN_DATABASE_URL": ""}},
		{name: "audit postgres without url", env: map[string]string{"WARDEN_STORE": "memory", "WARDEN_DATABASE_URL": "", "WARDEN_AUDIT_POSTGRES": "true"}},
		{name: "pool bounds", env: map[string]string{"WARDEN_STORE": "memory", "WARDEN_DB_MIN_CONNS": "20", "WARDEN_DB_MAX_CONNS": "5"}},
		{name: "log format", env: map[string]string{"WARDEN_STORE": "memory", "WARDEN_LOG_FORMAT": "xml"}},
		{name: "bad duration", env: map[string]string{"WARDEN_REDIS_CONNECT_TIMEOUT": "soon"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")
	require.NoError(t, ValidateSecurityConfig(Config{}))

	err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	t.Setenv(token.HMACEnvKey, "short")
	err = ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")

	t.Setenv(token.HMACEnvKey, strings.Repeat("k", 32))
	assert.NoError(t, ValidateSecurityConfig(Config{RequireTokenHMAC: true}))
}

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	fastArgon(t)

	a, err := New(context.Background(), Config{StoreDriver: DriverMemory, Metrics: true}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresLoginFlow(t *testing.T) {
	a := newMemoryApp(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	_, tok, err := a.Lifecycle.Register(ctx, now, lifecycle.RegisterInput{
		AccountID: 9, Identifier: "ops@example.com", Password: "a long enough secret",
	})
	require.NoError(t, err)
	_, err = a.Lifecycle.Verify(ctx, now, tok)
	require.NoError(t, err)

	cookie, err := a.Lifecycle.Login(ctx, now, "ops@example.com", "a long enough secret")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, cookie.Status())

	n, err := a.Sessions.DiscardAll(ctx, now, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotNil(t, a.Registry)
	series, err := testutil.GatherAndCount(a.Registry, "warden_auth_events_total")
	require.NoError(t, err)
	assert.Greater(t, series, 3)
}

func TestNew_SQLiteMigrateAndStore(t *testing.T) {
	fastArgon(t)
	ctx := context.Background()
	cfg := Config{StoreDriver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "warden.db")}

	a, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.NoError(t, a.Migrate(ctx))
	require.NoError(t, a.Migrate(ctx))

	now := time.Now().UTC()
	std, _, err := a.Lifecycle.Register(ctx, now, lifecycle.RegisterInput{
		AccountID: 3, Identifier: "lite@example.com", Password: "a long enough secret",
	})
	require.NoError(t, err)

	got, err := a.Finder.ByIdentifier(ctx, "LITE@example.com")
	require.NoError(t, err)
	assert.Equal(t, std.ID, got.ID)
	assert.Equal(t, identity.StatusNew, got.Status())
}

func TestNew_FailsFastOnSecurityPolicy(t *testing.T) {
	t.Setenv(token.HMACEnvKey, "")

	_, err := New(context.Background(), Config{StoreDriver: DriverMemory, RequireTokenHMAC: true}, quietLogger())
	require.Error(t, err)
}

func TestRun_Fingerprint(t *testing.T) {
	var out bytes.Buffer
	err := Run([]string{"fingerprint", "  Alice@Example.COM "}, IO{Out: &out, Err: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, token.Fingerprint("alice@example.com")+"\n", out.String())
}

func TestRun_Hash(t *testing.T) {
	fastArgon(t)

	var out bytes.Buffer
	err := Run([]string{"hash"}, IO{In: strings.NewReader("a long enough secret\n"), Out: &out, Err: io.Discard})
	require.NoError(t, err)

	encoded := strings.TrimSpace(out.String())
	pw, err := password.FromEnv()
	require.NoError(t, err)
	ok, err := pw.Verify(encoded, "a long enough secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_Sweep(t *testing.T) {
	fastArgon(t)
	t.Setenv("WARDEN_STORE", "memory")
	t.Setenv("WARDEN_DATABASE_URL", "")

	var out bytes.Buffer
	err := Run([]string{"sweep", "--account", "4"}, IO{Out: &out, Err: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "discarded 0 session(s) for account 4\n", out.String())

	err = Run([]string{"sweep"}, IO{Out: io.Discard, Err: io.Discard})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRun_UsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"frobnicate"},
		{"fingerprint"},
		{"fingerprint", "a", "b"},
	}
	for _, args := range cases {
		err := Run(args, IO{Out: io.Discard, Err: io.Discard})
		assert.ErrorIs(t, err, ErrUsage, "args=%v", args)
	}

	err := Run([]string{"hash"}, IO{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard})
	assert.ErrorIs(t, err, ErrUsage)
}

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"WARDEN_COOKIE_LIFESPAN":              "-5m",
		"WARDEN_COOKIE_KEY_BYTES":             "16",
		"WARDEN_COOKIE_SERIES_BYTES":          "8",
		"WARDEN_COOKIE_SERIES_ATTEMPTS":       "0",
		"WARDEN_COOKIE_CASCADE_ON_COMPROMISE": "sometimes",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := LoadConfigFromEnv()
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("WARDEN_COOKIE_LIFESPAN", "48h")
	t.Setenv("WARDEN_COOKIE_KEY_BYTES", "48")
	t.Setenv("WARDEN_COOKIE_SERIES_BYTES", "24")
	t.Setenv("WARDEN_COOKIE_SERIES_ATTEMPTS", "3")
	t.Setenv("WARDEN_COOKIE_CASCADE_ON_COMPROMISE", "false")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.CookieLifespan)
	assert.Equal(t, 48, cfg.KeyBytes)
	assert.Equal(t, 24, cfg.SeriesBytes)
	assert.Equal(t, 3, cfg.MaxSeriesAttempts)
	assert.False(t, cfg.CascadeOnCompromise)
}

package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration for cookie sessions.
//
// It is explicit and environment-driven so deployments can tune security
// parameters without code changes.
type Config struct {
	// CookieLifespan is how long a cookie stays valid after issue or renewal.
	CookieLifespan time.Duration

	// KeyBytes is the entropy of each rotated key.
	KeyBytes int

	// SeriesBytes is the entropy of a new series (hex encoded).
	SeriesBytes int

	// MaxSeriesAttempts bounds the series collision retry loop.
	MaxSeriesAttempts int

	// CascadeOnCompromise discards every other live cookie of the account
	// when a compromised cookie is detected.
	CascadeOnCompromise bool
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() Config {
	return Config{
		CookieLifespan:      30 * 24 * time.Hour,
		KeyBytes:            32,
		SeriesBytes:         16,
		MaxSeriesAttempts:   5,
		CascadeOnCompromise: true,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - WARDEN_COOKIE_LIFESPAN (Go duration, > 0)
//   - WARDEN_COOKIE_KEY_BYTES (32..64)
//   - WARDEN_COOKIE_SERIES_BYTES (16..64)
//   - WARDEN_COOKIE_SERIES_ATTEMPTS (1..20)
//   - WARDEN_COOKIE_CASCADE_ON_COMPROMISE (bool)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_COOKIE_LIFESPAN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.CookieLifespan = d
	}

	if v := os.Getenv("WARDEN_COOKIE_KEY_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.KeyBytes = n
	}

	if v := os.Getenv("WARDEN_COOKIE_SERIES_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.SeriesBytes = n
	}

	if v := os.Getenv("WARDEN_COOKIE_SERIES_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 20 {
			return Config{}, ErrConfig
		}
		cfg.MaxSeriesAttempts = n
	}

	if v := os.Getenv("WARDEN_COOKIE_CASCADE_ON_COMPROMISE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CascadeOnCompromise = b
	}

	return cfg, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CookieLifespan <= 0 {
		c.CookieLifespan = d.CookieLifespan
	}
	if c.KeyBytes <= 0 {
		c.KeyBytes = d.KeyBytes
	}
	if c.SeriesBytes <= 0 {
		c.SeriesBytes = d.SeriesBytes
	}
	if c.MaxSeriesAttempts <= 0 {
		c.MaxSeriesAttempts = d.MaxSeriesAttempts
	}
	return c
}

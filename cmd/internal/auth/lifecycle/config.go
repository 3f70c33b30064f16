package lifecycle

import (
	"errors"
	"os"
	"strconv"
	"time"

	"warden/cmd/identity"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config holds token and nonce lifetimes.
type Config struct {
	VerifyTokenLifetime time.Duration
	ResetTokenLifetime  time.Duration
	UpdateTokenLifetime time.Duration

	NonceLifetime time.Duration
	// NonceBytes is the entropy of a nonce identifier (hex encoded).
	NonceBytes int
	// NonceKeyBytes is the entropy of a nonce key.
	NonceKeyBytes int
}

// DefaultConfig returns the default lifetimes.
func DefaultConfig() Config {
	return Config{
		VerifyTokenLifetime: 48 * time.Hour,
		ResetTokenLifetime:  time.Hour,
		UpdateTokenLifetime: time.Hour,
		NonceLifetime:       15 * time.Minute,
		NonceBytes:          16,
		NonceKeyBytes:       32,
	}
}

// LoadConfigFromEnv loads lifetimes from environment variables.
//
// Optional (Go durations, > 0):
//   - WARDEN_TOKEN_VERIFY_TTL
//   - WARDEN_TOKEN_RESET_TTL
//   - WARDEN_TOKEN_UPDATE_TTL
//   - WARDEN_NONCE_TTL
//
// Optional (16..64):
//   - WARDEN_NONCE_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WARDEN_TOKEN_VERIFY_TTL", &cfg.VerifyTokenLifetime},
		{"WARDEN_TOKEN_RESET_TTL", &cfg.ResetTokenLifetime},
		{"WARDEN_TOKEN_UPDATE_TTL", &cfg.UpdateTokenLifetime},
		{"WARDEN_NONCE_TTL", &cfg.NonceLifetime},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		p, err := time.ParseDuration(v)
		if err != nil || p <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = p
	}

	if v := os.Getenv("WARDEN_NONCE_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.NonceBytes = n
	}

	return cfg, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VerifyTokenLifetime <= 0 {
		c.VerifyTokenLifetime = d.VerifyTokenLifetime
	}
	if c.ResetTokenLifetime <= 0 {
		c.ResetTokenLifetime = d.ResetTokenLifetime
	}
	if c.UpdateTokenLifetime <= 0 {
		c.UpdateTokenLifetime = d.UpdateTokenLifetime
	}
	if c.NonceLifetime <= 0 {
		c.NonceLifetime = d.NonceLifetime
	}
	if c.NonceBytes <= 0 {
		c.NonceBytes = d.NonceBytes
	}
	if c.NonceKeyBytes <= 0 {
		c.NonceKeyBytes = d.NonceKeyBytes
	}
	return c
}

func (c Config) lifetime(a identity.TokenAction) time.Duration {
	switch a {
	case identity.ActionVerify:
		return c.VerifyTokenLifetime
	case identity.ActionReset:
		return c.ResetTokenLifetime
	default:
		return c.UpdateTokenLifetime
	}
}

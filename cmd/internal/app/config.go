package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrConfig reports an invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	LogLevel  string `env:"WARDEN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"WARDEN_LOG_FORMAT" envDefault:"json"`

	// StoreDriver selects the identity gateway: memory, sqlite or postgres.
	// Empty picks postgres when DatabaseURL is set, memory otherwise.
	StoreDriver string `env:"WARDEN_STORE"`

	DatabaseURL string `env:"WARDEN_DATABASE_URL"`
	DBMaxConns  int32  `env:"WARDEN_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"WARDEN_DB_MIN_CONNS" envDefault:"0"`
	Schema      string `env:"WARDEN_DB_SCHEMA" envDefault:"warden"`

	SQLitePath string `env:"WARDEN_SQLITE_PATH" envDefault:"warden.db"`

	// AuditPostgres also writes audit events to the audit_log table.
	AuditPostgres bool `env:"WARDEN_AUDIT_POSTGRES" envDefault:"false"`

	RedisURL            string        `env:"WARDEN_REDIS_URL"`
	RedisConnectTimeout time.Duration `env:"WARDEN_REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	RedisRetryAttempts  int           `env:"WARDEN_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RedisRetryInterval  time.Duration `env:"WARDEN_REDIS_RETRY_INTERVAL" envDefault:"500ms"`
	AuditStream         string        `env:"WARDEN_AUDIT_STREAM" envDefault:"warden:audit"`
	AuditStreamMaxLen   int64         `env:"WARDEN_AUDIT_STREAM_MAXLEN" envDefault:"100000"`

	Metrics bool `env:"WARDEN_METRICS" envDefault:"true"`

	// If true, WARDEN_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and key digests are HMAC-based.
	// Changing the digest scheme invalidates stored cookie digests; set
	// WARDEN_TOKEN_HMAC_PREVIOUS_KEY (rotation) or WARDEN_TOKEN_ACCEPT_UNKEYED=true
	// (first enablement) for one cookie lifespan so sessions renew onto the new key.
	RequireTokenHMAC bool `env:"WARDEN_REQUIRE_TOKEN_HMAC" envDefault:"false"`
}

// LoadConfig loads a .env file when present and parses Config from the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		c.StoreDriver = DriverMemory
		if c.DatabaseURL != "" {
			c.StoreDriver = DriverPostgres
		}
	}

	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: WARDEN_STORE=postgres requires WARDEN_DATABASE_URL", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown WARDEN_STORE %q", ErrConfig, c.StoreDriver)
	}

	if c.AuditPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("%w: WARDEN_AUDIT_POSTGRES requires WARDEN_DATABASE_URL", ErrConfig)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("%w: invalid db pool bounds", ErrConfig)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json":
		c.LogFormat = "json"
	case "pretty", "text":
		c.LogFormat = "pretty"
	default:
		return fmt.Errorf("%w: unknown WARDEN_LOG_FORMAT %q", ErrConfig, c.LogFormat)
	}
	return nil
}

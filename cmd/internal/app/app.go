// Package app wires the warden runtime: config, logging, the identity
// gateway, audit sinks and the auth services.
package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"warden/cmd/identity"
	"warden/cmd/internal/audit"
	"warden/cmd/internal/auth/lifecycle"
	"warden/cmd/internal/auth/search"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

// App owns the wired services and the resources behind them.
type App struct {
	cfg Config
	log Logger

	Gateway   identity.Gateway
	Finder    *search.Finder
	Sessions  *session.Service
	Lifecycle *lifecycle.Service
	Passwords password.Config
	// Registry holds the audit counters when metrics are enabled.
	Registry *prometheus.Registry

	pool      *pgxpool.Pool
	redis     *redis.Client
	migrators []migrator
	closers   []func() error
}

// New constructs a fully wired App. On error every opened resource is closed.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(nil, cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	gw, err := a.openGateway(ctx)
	if err != nil {
		return err
	}

	sink, err := a.auditSink(ctx)
	if err != nil {
		return err
	}
	em := audit.NewEmitter(sink, a.log)

	pw, err := password.FromEnv()
	if err != nil {
		return err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	lcCfg, err := lifecycle.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	a.Gateway = gw
	a.Passwords = pw
	a.Finder = search.NewFinder(gw)
	a.Sessions = session.NewService(sessCfg, gw, session.WithEmitter(em))
	a.Lifecycle = lifecycle.NewService(lcCfg, gw, pw, a.Sessions,
		lifecycle.WithEmitter(em),
		lifecycle.WithLogger(a.log),
	)
	return nil
}

// auditSink assembles the configured sinks. The log sink is always present.
func (a *App) auditSink(ctx context.Context) (audit.Sink, error) {
	sinks := []audit.Sink{audit.NewLogSink(a.log)}

	if a.cfg.Metrics {
		a.Registry = prometheus.NewRegistry()
		ms, err := audit.NewMetricsSink(a.Registry)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ms)
	}

	if a.cfg.AuditPostgres {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		ps, err := audit.NewPostgresSink(pool, a.cfg.Schema)
		if err != nil {
			return nil, err
		}
		a.migrators = append(a.migrators, ps)
		sinks = append(sinks, ps)
	}

	if a.cfg.RedisURL != "" {
		client, err := ConnectRedis(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		rs, err := audit.NewRedisSink(client, a.cfg.AuditStream, a.cfg.AuditStreamMaxLen)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rs)
		a.log.Info("audit.stream.enabled", "stream", a.cfg.AuditStream)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return audit.Multi(sinks...), nil
}

// Config returns the runtime configuration.
func (a *App) Config() Config { return a.cfg }

// Migrate applies the schema of every store and sink that owns one.
func (a *App) Migrate(ctx context.Context) error {
	for _, m := range a.migrators {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	a.log.Info("migrate.done", "driver", a.cfg.StoreDriver, "targets", len(a.migrators))
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

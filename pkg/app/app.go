package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3" // profile store default driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/lockout"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/storage"
)

// App holds every long-lived component of a warden process
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Postgres  *storage.ConnectionManager
	ProfileDB *sql.DB
	Redis     *redis.Client

	Identities *identity.CachedStore
	Profiles   *profile.SQLStore
	AuditStore *audit.DBStore
	DeadLetter *audit.FileDeadLetter
	Recorder   *audit.AsyncRecorder
	Audit      *audit.Service
	Sessions   *session.Authority
	Tokens     *auth.TokenService
	Lockout    *lockout.Policy
	Sync       *identitysync.Synchronizer
	Accounts   *accounts.Service
	Health     *observability.HealthChecker

	version string
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func(context.Context) error
}

// New connects to every backing store and builds the services on top. On
// error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, version string) (a *App, err error) {
	if logger == nil {
		logger = observability.NewLogger(cfg.Observability.Level(), nil)
	}

	a = &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		version:  version,
	}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.WithError(closeErr).Warn("cleanup after failed startup")
			}
			a = nil
		}
	}()

	if cfg.Observability.MetricsEnabled {
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	if err := a.buildAudit(); err != nil {
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		return nil, err
	}

	a.Health = observability.NewHealthChecker(version).
		AddDatabase("postgres", a.Postgres.Primary(), true).
		AddDatabase("profiles", a.ProfileDB, true).
		AddRedis("redis", a.Redis, true)

	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	pg, err := storage.NewConnectionManager(cfg.Database.Identity, a.Logger)
	if err != nil {
		return err
	}
	a.Postgres = pg
	a.onClose("postgres", func(context.Context) error { return pg.Close() })

	profileDB, err := sql.Open(cfg.Database.ProfileDriver, cfg.Database.ProfileDSN)
	if err != nil {
		return fmt.Errorf("failed to open profile database: %w", err)
	}
	a.ProfileDB = profileDB
	a.onClose("profile database", func(context.Context) error { return profileDB.Close() })
	if err := profileDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach profile database: %w", err)
	}
	if cfg.Database.ProfileDriver == "sqlite3" {
		// one writer; sqlite serializes anyway
		profileDB.SetMaxOpenConns(1)
	}

	client, err := storage.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = client
	a.onClose("redis", func(context.Context) error { return client.Close() })

	pgStore, err := identity.NewPostgresStore(pg.Primary())
	if err != nil {
		return err
	}
	a.Identities = identity.NewCachedStore(pgStore, cfg.Database.IdentityCacheSize, cfg.Database.IdentityCacheTTL, a.Metrics)

	a.Profiles, err = profile.NewSQLStore(profileDB, cfg.Database.ProfileDriver)
	if err != nil {
		return err
	}

	a.AuditStore, err = audit.NewDBStore(pg.Primary())
	return err
}

func (a *App) buildAudit() error {
	cfg := a.Config.Audit

	opts := []audit.AsyncOption{
		audit.WithLogger(a.Logger.WithField("component", "audit")),
		audit.WithMetrics(a.Metrics),
	}
	if cfg.DeadLetterDir != "" {
		dlCfg := audit.DefaultDeadLetterConfig()
		dlCfg.BasePath = cfg.DeadLetterDir
		dl, err := audit.NewFileDeadLetter(dlCfg)
		if err != nil {
			return err
		}
		a.DeadLetter = dl
		a.onClose("audit dead letter", func(context.Context) error { return dl.Close() })
		opts = append(opts, audit.WithDeadLetter(dl))
	}

	a.Recorder = audit.NewAsyncRecorder(a.AuditStore, cfg.Async(), opts...)
	// registered after the stores, so it is closed before them
	a.onClose("audit queue", a.Recorder.Close)

	serviceOpts := []audit.ServiceOption{audit.WithServiceLogger(a.Logger.WithField("component", "audit"))}
	if cfg.ArchiveEnabled {
		objects, err := storage.NewObjectStore(context.Background(), cfg.Archive)
		if err != nil {
			return err
		}
		serviceOpts = append(serviceOpts, audit.WithArchiver(objects))
	}
	a.Audit = audit.NewService(a.AuditStore, a.Recorder, serviceOpts...)
	return nil
}

func (a *App) buildServices() error {
	cfg := a.Config

	key, err := cfg.Token.Key()
	if err != nil {
		return err
	}
	a.Tokens, err = auth.NewTokenService(key, cfg.Token.TTL)
	if err != nil {
		return err
	}

	a.Sessions = session.NewAuthority(a.Redis, cfg.Session.Authority(),
		session.WithRecorder(a.Recorder),
		session.WithMetrics(a.Metrics),
		session.WithLogger(a.Logger.WithField("component", "session")),
	)

	a.Lockout = lockout.NewPolicy(a.AuditStore, cfg.Lockout.Policy(),
		lockout.WithLogger(a.Logger.WithField("component", "lockout")),
		lockout.WithMetrics(a.Metrics),
	)

	a.Sync = identitysync.New(a.Identities, a.Profiles, cfg.Sync.Synchronizer(),
		identitysync.WithRecorder(a.Recorder),
		identitysync.WithLogger(a.Logger.WithField("component", "identitysync")),
		identitysync.WithMetrics(a.Metrics),
	)

	a.Accounts, err = accounts.NewService(accounts.Deps{
		Identities: a.Identities,
		Profiles:   a.Profiles,
		Hasher:     auth.NewBcryptHasher(cfg.Accounts.BcryptCost),
		Guard:      a.Lockout,
		Sessions:   a.Sessions,
		Syncer:     a.Sync,
		Recorder:   a.Recorder,
		Logger:     a.Logger.WithField("component", "accounts"),
		Metrics:    a.Metrics,
	}, cfg.Accounts.Policy())
	return err
}

// Server builds the HTTP handler
func (a *App) Server() (*api.Server, error) {
	trust, err := a.Config.Server.ProxyTrust()
	if err != nil {
		return nil, err
	}

	dispatcherCfg := middleware.DefaultDispatcherConfig()
	dispatcherCfg.Cookies = a.Config.Session.Cookies()
	dispatcher := middleware.NewDispatcher(a.Tokens, a.Sessions, a.Identities, dispatcherCfg, a.Logger.WithField("component", "dispatcher"))

	var limiter *middleware.RateLimitMiddleware
	if a.Config.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(a.Redis, a.Config.RateLimit.Limiter(), a.Config.Session.KeyPrefix+":ratelimit:login")
		limiter = middleware.NewRateLimitMiddleware(rl, a.Logger.WithField("component", "ratelimit"), a.Metrics)
	}

	return api.NewServer(api.Deps{
		Accounts:     a.Accounts,
		Tokens:       a.Tokens,
		Sessions:     a.Sessions,
		Dispatcher:   dispatcher,
		Audit:        a.Audit,
		Recorder:     a.Recorder,
		Synchronizer: a.Sync,
		LoginLimiter: limiter,
		Health:       a.Health,
		Registry:     a.Registry,
		Logger:       a.Logger,
		Metrics:      a.Metrics,
	}, api.Config{
		MaxBodyBytes:   a.Config.Server.MaxBodyBytes,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		ProxyTrust:     trust,
	})
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// Close releases everything in reverse order of acquisition, so the audit
// queue is flushed while its database is still open.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.WithError(err).WithField("resource", c.name).Warn("close failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package app wires sessiond: configuration, logging, the Redis session
// store, the audit backend, metrics, the retention scheduler and the ops
// HTTP server.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/sessionkit/pkg/audit"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/metrics"
	"github.com/dmitrymomot/sessionkit/pkg/redis"
	"github.com/dmitrymomot/sessionkit/pkg/scheduler"
	"github.com/dmitrymomot/sessionkit/pkg/session"
	"github.com/dmitrymomot/sessionkit/pkg/token"
)

const purgeTaskName = "audit-purge"

// App owns every long-lived resource of the process.
type App struct {
	settings Settings
	log      *slog.Logger

	manager   *session.Manager
	auditLog  *audit.Logger
	purger    *audit.Purger
	collector *metrics.Collector
	registry  *prometheus.Registry
	scheduler *scheduler.Scheduler
	server    *httpserver.Server
	ops       http.Handler

	closers []closer
}

// New connects the backing services and builds the session manager. On
// error nothing is left open.
func New(ctx context.Context, s Settings, log *slog.Logger) (a *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a = &App{settings: s, log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	client, err := redis.Connect(ctx, s.Redis)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, closer{name: "redis", fn: func(context.Context) error { return client.Close() }})

	storeOpts := []session.StoreOption{session.WithKeyPrefix(s.Redis.KeyPrefix)}
	if s.App.TokenDigestKey != "" {
		storeOpts = append(storeOpts, session.WithTokenKey([]byte(s.App.TokenDigestKey)))
	}
	store := session.NewRedisStore(client, storeOpts...)

	minter, err := newMinter(s.App)
	if err != nil {
		return a, err
	}

	backend, err := openAudit(ctx, s.App, log)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, backend.closers...)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(a.registry)

	a.auditLog = audit.NewLogger(backend.storage, audit.WithTimeout(s.Policy.AuditTimeout))
	a.manager = session.New(store, a.auditLog,
		session.WithPolicy(s.Policy),
		session.WithMinter(minter),
		session.WithObserver(a.collector),
		session.WithLogger(log),
	)

	purgerOpts := []audit.PurgerOption{audit.WithPurgerLogger(log)}
	if backend.archiver != nil {
		purgerOpts = append(purgerOpts, audit.WithArchiver(backend.archiver))
	}
	a.purger = audit.NewPurger(backend.storage, s.Policy.AuditRetentionDays, purgerOpts...)

	schedule, err := scheduler.Parse(s.App.PurgeSchedule)
	if err != nil {
		return a, err
	}
	a.scheduler = scheduler.New(scheduler.WithLogger(log))
	if err := a.scheduler.AddTask(purgeTaskName, schedule, a.Purge,
		scheduler.WithTaskTimeout(s.App.PurgeTimeout)); err != nil {
		return a, err
	}

	checks := append([]httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}}, backend.checks...)
	a.ops = httpserver.NewOpsRouter(httpserver.OpsRoutes{
		Checks:       checks,
		CheckTimeout: s.HTTP.CheckTimeout,
		Metrics:      metrics.Handler(a.registry),
		Logger:       log,
	})
	a.server = httpserver.NewFromConfig(s.HTTP, httpserver.WithLogger(log))

	log.InfoContext(ctx, "sessiond ready",
		slog.String("audit_backend", s.App.AuditBackend),
		slog.String("token_format", s.App.TokenFormat),
		slog.String("purge_schedule", schedule.String()),
	)
	return a, nil
}

// Manager returns the session manager for in-process callers.
func (a *App) Manager() *session.Manager { return a.manager }

// Audit returns the audit logger the manager writes through.
func (a *App) Audit() *audit.Logger { return a.auditLog }

// Handler returns the ops router serving /healthz, /readyz and /metrics.
func (a *App) Handler() http.Handler { return a.ops }

// Purge runs one retention pass and records its outcome in the metrics.
func (a *App) Purge(ctx context.Context) error {
	start := time.Now()
	err := a.purger.Run(ctx)
	a.collector.ObservePurge(time.Since(start), err)
	return err
}

// Run serves the ops endpoints and runs the scheduler until ctx is cancelled
// or one of them fails, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx, a.ops)
	})
	g.Go(func() error {
		if err := a.scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.log.ErrorContext(ctx, "sessiond stopped with error", logger.Error(err))
	}

	timeout := a.settings.App.CloseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return errors.Join(err, a.Close(closeCtx))
}

// Close releases the connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	closers := a.closers
	a.closers = nil
	return closeAll(ctx, a.log, closers)
}

func newMinter(cfg Config) (token.Minter, error) {
	switch cfg.TokenFormat {
	case TokenOpaque, "":
		return token.NewOpaque(cfg.TokenSize), nil
	case TokenJWT:
		if cfg.TokenSigningKey == "" {
			return nil, ErrMissingSigningKey
		}
		return token.NewJWT([]byte(cfg.TokenSigningKey), token.WithIssuer(cfg.TokenIssuer))
	default:
		return nil, errors.Join(ErrUnknownTokenFormat, errors.New(cfg.TokenFormat))
	}
}

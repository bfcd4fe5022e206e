package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/sessionkit/pkg/audit"
	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/mongo"
	"github.com/dmitrymomot/sessionkit/pkg/pg"
)

// closer releases a resource on shutdown.
type closer struct {
	name string
	fn   func(context.Context) error
}

// auditBackend is the storage selected by AUDIT_BACKEND plus what it needs
// at runtime.
type auditBackend struct {
	storage  audit.Storage
	archiver audit.Archiver
	checks   []httpserver.Check
	closers  []closer
}

// openAudit connects the configured audit storage. On error every resource
// opened so far is already released.
func openAudit(ctx context.Context, cfg Config, log *slog.Logger) (b auditBackend, err error) {
	defer func() {
		if err != nil {
			_ = closeAll(context.WithoutCancel(ctx), log, b.closers)
		}
	}()

	switch cfg.AuditBackend {
	case BackendMemory:
		log.WarnContext(ctx, "audit records are kept in memory and lost on restart")
		b.storage = audit.NewMemoryStorage()

	case BackendPostgres:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return b, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, closer{name: "postgres", fn: func(context.Context) error {
			pool.Close()
			return nil
		}})
		if err := pg.Migrate(ctx, pool, audit.Migrations, "migrations", pgCfg, log); err != nil {
			return b, err
		}
		b.storage = audit.NewPostgresStorage(pool)
		b.checks = append(b.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})

	case BackendMongo:
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return b, err
		}
		client, db, err := mongo.NewWithDatabase(ctx, mongoCfg)
		if err != nil {
			return b, err
		}
		b.closers = append(b.closers, closer{name: "mongo", fn: client.Disconnect})
		storage := audit.NewMongoStorage(db)
		if err := storage.EnsureIndexes(ctx); err != nil {
			return b, err
		}
		b.storage = storage
		b.checks = append(b.checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})

	default:
		return b, errors.Join(ErrUnknownAuditBackend, errors.New(cfg.AuditBackend))
	}

	if cfg.AuditArchiveEnabled {
		var s3Cfg audit.S3Config
		if err := config.Load(&s3Cfg); err != nil {
			return b, err
		}
		archiver, err := audit.NewS3Archiver(ctx, s3Cfg)
		if err != nil {
			return b, err
		}
		b.archiver = archiver
	}

	if cfg.AuditAsync {
		writer, closeWriter := audit.NewAsyncWriter(b.storage, audit.AsyncOptions{
			BufferSize:   cfg.AuditAsyncBufferSize,
			BatchSize:    cfg.AuditAsyncBatchSize,
			BatchTimeout: cfg.AuditAsyncBatchTimeout,
		})
		b.storage = writer
		// flushed before the connection it writes through is closed
		b.closers = append(b.closers, closer{name: "audit writer", fn: closeWriter})
	}

	return b, nil
}

// closeAll runs closers in reverse order, logging failures.
func closeAll(ctx context.Context, log *slog.Logger, closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			log.ErrorContext(ctx, "failed to close "+c.name, logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

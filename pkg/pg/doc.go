// Package pg connects the audit store to PostgreSQL.
//
// Connect opens a pgx pool with retries, Migrate applies goose migrations
// from an fs.FS (audit.Migrations in practice) and Healthcheck backs the
// readiness probe of cmd/sessiond.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, audit.Migrations, "migrations", cfg, slog.Default()); err != nil {
//		return err
//	}
//	storage := audit.NewPostgresStorage(pool)
package pg

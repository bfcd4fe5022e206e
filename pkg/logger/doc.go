// Package logger builds the slog.Logger used across sessionkit and provides
// attribute helpers for the identifiers that appear in session logs.
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log, err := logger.NewFromConfig(cfg, logger.WithContextExtractors(tenant.LogExtractor()))
//
// Attribute helpers return an empty slog.Attr for empty input, which slog
// drops, so call sites need no nil checks:
//
//	log.InfoContext(ctx, "session revoked",
//		logger.TenantID(tenantID),
//		logger.SessionID(id),
//		logger.Reason("logout"))
package logger

// Package session implements the session lifecycle of a multi-tenant
// application: creation with a per-user session cap, access token validation
// with device fingerprinting and anomaly handling, token refresh, revocation
// and listing.
//
// Records live in a Store. MemoryStore serves tests and single-process
// deployments; RedisStore keeps records, token digests and the per-user index
// in Redis and enforces the cap with a Lua script, so concurrent logins of the
// same user never leave more than the allowed number of sessions behind.
//
// Every lifecycle step is written to an Auditor (normally *audit.Logger).
// Audit writes are best effort: they are bounded by Policy.AuditTimeout and a
// failure is logged and reported to the Observer but never fails the
// operation.
//
// Basic usage:
//
//	store := session.NewRedisStore(client, session.WithTokenKey(key))
//	auditor := audit.NewLogger(audit.NewMemoryStorage())
//	mgr := session.New(store, auditor, session.WithPolicy(policy))
//
//	rec, err := mgr.Create(ctx, session.CreateParams{
//		TenantID: "acme",
//		UserID:   "u-1",
//		Device:   device,
//		IP:       clientIP,
//	})
//
//	rec, err = mgr.Validate(ctx, session.ValidateParams{
//		TenantID:    "acme",
//		AccessToken: rec.AccessToken,
//		Device:      device,
//		IP:          clientIP,
//	})
//	switch {
//	case errors.Is(err, session.ErrSessionExpired):
//		// call Refresh
//	case errors.Is(err, session.ErrChallengeRequired):
//		// ask the user to re-authenticate
//	}
package session

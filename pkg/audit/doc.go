// Package audit records session lifecycle facts for security review.
//
// Two append-only record kinds are kept per tenant:
//
//   - SessionEvent – a compact fact (created, validated, refreshed, revoked,
//     expired, anomaly_detected) written for every session state change.
//   - Entry – a higher-detail record for security-relevant actions carrying
//     the client IP address and the serialised device description.
//
// Both are immutable once written. Every record carries a SHA-256 content hash
// so that modification after the fact is detectable with Verify.
//
// # Architecture
//
// Storage is the persistence contract. The package ships MemoryStorage for
// tests and single-process deployments, PostgresStorage (pgx) and MongoStorage
// for durable deployments. AsyncWriter wraps any Storage and batches appends.
//
// Logger is the write path used by the session manager. Writes are bounded by
// a timeout: a slow or unavailable backend never blocks the session operation
// longer than that, and the failure is returned for the caller to report.
//
// Purger enforces the retention window. It is run by a scheduler, never by the
// request path, and may hand expired records to an Archiver (S3Archiver ships
// with the package) before deleting them.
//
// # Usage
//
//	storage := audit.NewMemoryStorage()
//	log := audit.NewLogger(storage, audit.WithTimeout(2*time.Second))
//
//	err := log.RecordEvent(ctx, audit.SessionEvent{
//	    SessionID: sid,
//	    UserID:    uid,
//	    TenantID:  tid,
//	    Type:      audit.EventCreated,
//	})
//
//	purger := audit.NewPurger(storage, 365)
//	err = purger.Run(ctx)
//
// # Errors
//
// ErrStorageNotAvailable and ErrStorageTimeout wrap backend failures,
// ErrInvalidEvent reports a record missing required fields and ErrTenantRequired
// rejects unscoped queries.
package audit

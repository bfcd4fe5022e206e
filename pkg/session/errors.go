package session

import "errors"

var (
	// ErrNotFound indicates the session is unknown, expired in the store,
	// removed, or owned by another tenant
	ErrNotFound = errors.New("session.not_found")

	// ErrSessionExpired indicates the access token expired; refresh may still work
	ErrSessionExpired = errors.New("session.expired")

	// ErrRefreshExpired indicates the refresh token expired; the user must log in again
	ErrRefreshExpired = errors.New("session.refresh_expired")

	// ErrSessionRevoked indicates the session was revoked for a security reason
	ErrSessionRevoked = errors.New("session.revoked")

	// ErrChallengeRequired indicates repeated anomalies; the session is kept but
	// the user has to re-authenticate before it can be used again
	ErrChallengeRequired = errors.New("session.challenge_required")

	// ErrStoreUnavailable indicates a transient store failure; retry with backoff
	ErrStoreUnavailable = errors.New("session.store_unavailable")

	// ErrInvalidParams indicates missing or malformed input
	ErrInvalidParams = errors.New("session.invalid_params")

	// ErrTokenGeneration indicates the token minter failed
	ErrTokenGeneration = errors.New("session.token_generation_failed")

	// ErrInvalidPolicy indicates a policy that cannot be enforced
	ErrInvalidPolicy = errors.New("session.invalid_policy")

	// ErrImmutableField indicates an update tried to change the owner of a record
	ErrImmutableField = errors.New("session.immutable_field")
)

// errExpiryReported aborts the update in Manager.reportAccessExpired when the
// event was already written.
var errExpiryReported = errors.New("session.expiry_reported")

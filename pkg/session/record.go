package session

import (
	"maps"
	"time"
)

// Record is one active login. The record, not the tokens, is the source of
// truth: a token only works while a record referencing it exists.
type Record struct {
	ID                string            `json:"id"`
	AccessToken       string            `json:"access_token"`
	RefreshToken      string            `json:"refresh_token"`
	UserID            string            `json:"user_id"`
	TenantID          string            `json:"tenant_id"`
	Role              string            `json:"role,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	AccessExpiresAt   time.Time         `json:"access_expires_at"`
	RefreshExpiresAt  time.Time         `json:"refresh_expires_at"`
	RequestCount      int64             `json:"request_count"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	LastIP            string            `json:"last_ip,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	// ExpiryReported is set once the expired event for the current access
	// token has been recorded. Refresh clears it.
	ExpiryReported bool `json:"expiry_reported,omitempty"`
}

// AccessExpired reports whether the access token is no longer valid at now.
func (r Record) AccessExpired(now time.Time) bool {
	return !now.Before(r.AccessExpiresAt)
}

// RefreshExpired reports whether the refresh token is no longer valid at now.
func (r Record) RefreshExpired(now time.Time) bool {
	return !now.Before(r.RefreshExpiresAt)
}

func (r Record) clone() Record {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

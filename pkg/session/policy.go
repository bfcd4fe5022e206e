package session

import (
	"fmt"
	"time"
)

// Policy holds the session rules. It is loaded once at startup and treated as
// read-only afterwards.
type Policy struct {
	AccessTTL               time.Duration `env:"SESSION_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL              time.Duration `env:"SESSION_REFRESH_TTL" envDefault:"720h"`
	MaxSessionsPerUser      int           `env:"SESSION_MAX_PER_USER" envDefault:"5"`
	FingerprintEnabled      bool          `env:"SESSION_FINGERPRINT_ENABLED" envDefault:"true"`
	AnomalyDetectionEnabled bool          `env:"SESSION_ANOMALY_ENABLED" envDefault:"true"`
	AuditRetentionDays      int           `env:"SESSION_AUDIT_RETENTION_DAYS" envDefault:"365"`

	// RotateRefreshToken issues a new refresh token on every refresh; the old
	// one stops resolving immediately.
	RotateRefreshToken bool `env:"SESSION_ROTATE_REFRESH_TOKEN" envDefault:"true"`

	// AuditTimeout bounds each audit write made on behalf of a session operation.
	AuditTimeout time.Duration `env:"SESSION_AUDIT_TIMEOUT" envDefault:"2s"`

	// ChallengeThreshold escalates network drift to a challenge once the session
	// logged that many anomalies within ChallengeWindow. Zero disables it.
	ChallengeThreshold int           `env:"SESSION_ANOMALY_CHALLENGE_THRESHOLD" envDefault:"0"`
	ChallengeWindow    time.Duration `env:"SESSION_ANOMALY_CHALLENGE_WINDOW" envDefault:"1h"`
}

// DefaultPolicy returns the policy matching the env defaults.
func DefaultPolicy() Policy {
	return Policy{
		AccessTTL:               time.Hour,
		RefreshTTL:              30 * 24 * time.Hour,
		MaxSessionsPerUser:      5,
		FingerprintEnabled:      true,
		AnomalyDetectionEnabled: true,
		AuditRetentionDays:      365,
		RotateRefreshToken:      true,
		AuditTimeout:            2 * time.Second,
		ChallengeWindow:         time.Hour,
	}
}

// Validate checks the policy can be enforced.
func (p Policy) Validate() error {
	switch {
	case p.AccessTTL <= 0:
		return fmt.Errorf("%w: access ttl must be positive", ErrInvalidPolicy)
	case p.RefreshTTL < p.AccessTTL:
		return fmt.Errorf("%w: refresh ttl %s is shorter than access ttl %s", ErrInvalidPolicy, p.RefreshTTL, p.AccessTTL)
	case p.MaxSessionsPerUser < 1:
		return fmt.Errorf("%w: max sessions per user must be at least 1", ErrInvalidPolicy)
	case p.AuditRetentionDays < 1:
		return fmt.Errorf("%w: audit retention must be at least one day", ErrInvalidPolicy)
	case p.ChallengeThreshold < 0:
		return fmt.Errorf("%w: challenge threshold cannot be negative", ErrInvalidPolicy)
	}
	return nil
}

// storeTTL is how long the store keeps a record: the longer of both tokens.
func (p Policy) storeTTL() time.Duration {
	return max(p.AccessTTL, p.RefreshTTL)
}

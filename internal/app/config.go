package app

import (
	"errors"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/config"
	"github.com/dmitrymomot/sessionkit/pkg/httpserver"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/redis"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"

	TokenOpaque = "opaque"
	TokenJWT    = "jwt"
)

// Config holds the process-level settings of sessiond. Backend specific
// settings (AUDIT_PG_*, AUDIT_MONGODB_*, AUDIT_ARCHIVE_S3_*) are only read
// when the matching backend is selected.
type Config struct {
	AuditBackend string `env:"AUDIT_BACKEND" envDefault:"memory"` // memory | postgres | mongo

	AuditAsync             bool          `env:"AUDIT_ASYNC_ENABLED" envDefault:"false"`
	AuditAsyncBufferSize   int           `env:"AUDIT_ASYNC_BUFFER_SIZE" envDefault:"1000"`
	AuditAsyncBatchSize    int           `env:"AUDIT_ASYNC_BATCH_SIZE" envDefault:"100"`
	AuditAsyncBatchTimeout time.Duration `env:"AUDIT_ASYNC_BATCH_TIMEOUT" envDefault:"100ms"`

	AuditArchiveEnabled bool          `env:"AUDIT_ARCHIVE_ENABLED" envDefault:"false"`
	PurgeSchedule       string        `env:"AUDIT_PURGE_SCHEDULE" envDefault:"@daily 03:00"`
	PurgeTimeout        time.Duration `env:"AUDIT_PURGE_TIMEOUT" envDefault:"30m"`

	TokenFormat     string `env:"SESSION_TOKEN_FORMAT" envDefault:"opaque"` // opaque | jwt
	TokenSize       int    `env:"SESSION_TOKEN_SIZE" envDefault:"32"`       // bytes of randomness in opaque tokens
	TokenSigningKey string `env:"SESSION_TOKEN_SIGNING_KEY"`                // HMAC key, required for jwt
	TokenIssuer     string `env:"SESSION_TOKEN_ISSUER" envDefault:"sessiond"`
	TokenDigestKey  string `env:"SESSION_TOKEN_DIGEST_KEY"` // keys the token lookup digests in redis

	CloseTimeout time.Duration `env:"SHUTDOWN_CLOSE_TIMEOUT" envDefault:"10s"`
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	switch c.AuditBackend {
	case BackendMemory, BackendPostgres, BackendMongo:
	default:
		return errors.Join(ErrUnknownAuditBackend, errors.New(c.AuditBackend))
	}
	switch c.TokenFormat {
	case TokenOpaque:
	case TokenJWT:
		if c.TokenSigningKey == "" {
			return ErrMissingSigningKey
		}
	default:
		return errors.Join(ErrUnknownTokenFormat, errors.New(c.TokenFormat))
	}
	return nil
}

// Settings groups every configuration struct sessiond needs at startup.
type Settings struct {
	App    Config
	Logger logger.Config
	Policy session.Policy
	Redis  redis.Config
	HTTP   httpserver.Config
}

// LoadSettings reads all settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	err := errors.Join(
		config.Load(&s.App),
		config.Load(&s.Logger),
		config.Load(&s.Policy),
		config.Load(&s.Redis),
		config.Load(&s.HTTP),
	)
	if err != nil {
		return Settings{}, err
	}
	if err := s.App.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.Policy.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

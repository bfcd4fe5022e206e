package redis

import "time"

// Config describes the Redis instance holding live sessions.
type Config struct {
	ConnectionURL  string        `env:"SESSION_REDIS_URL" envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	KeyPrefix      string        `env:"SESSION_REDIS_PREFIX" envDefault:"sess:"`                 // namespace for every session key
	RetryAttempts  int           `env:"SESSION_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"SESSION_REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"SESSION_REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // bounds the whole connect loop
}

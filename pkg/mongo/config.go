package mongo

import "time"

// Config describes the MongoDB deployment used as an alternative audit store.
type Config struct {
	ConnectionURL   string        `env:"AUDIT_MONGODB_URL,required"`
	Database        string        `env:"AUDIT_MONGODB_DATABASE" envDefault:"sessionkit"`
	ConnectTimeout  time.Duration `env:"AUDIT_MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"AUDIT_MONGODB_MAX_POOL_SIZE" envDefault:"50"`
	MinPoolSize     uint64        `env:"AUDIT_MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"AUDIT_MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryWrites     bool          `env:"AUDIT_MONGODB_RETRY_WRITES" envDefault:"true"`
	RetryAttempts   int           `env:"AUDIT_MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"AUDIT_MONGODB_RETRY_INTERVAL" envDefault:"2s"`
}

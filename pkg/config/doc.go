// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with github.com/caarlos0/env tags and are
// filled by Load, which also reads a ./.env file through godotenv the first
// time it runs:
//
//	type Policy struct {
//		AccessTTL time.Duration `env:"SESSION_ACCESS_TTL" envDefault:"1h"`
//	}
//
//	var p Policy
//	config.MustLoad(&p)
//
// Load caches the parsed value per type. Use Parse for an uncached read and
// ResetCache in tests that change the environment between loads.
package config

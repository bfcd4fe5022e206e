package session

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/anomaly"
	"github.com/dmitrymomot/sessionkit/pkg/tenant"
	"github.com/dmitrymomot/sessionkit/pkg/token"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithMinter sets the token minter. Defaults to 32-byte opaque tokens.
func WithMinter(minter token.Minter) Option {
	return func(m *Manager) {
		if minter != nil {
			m.minter = minter
		}
	}
}

// WithDetector overrides the detector built from the policy.
func WithDetector(d *anomaly.Detector) Option {
	return func(m *Manager) {
		m.detector = d
	}
}

// WithTenantProvider sets where an omitted tenant id is read from.
// Defaults to tenant.ContextProvider.
func WithTenantProvider(p tenant.Provider) Option {
	return func(m *Manager) {
		m.tenants = p
	}
}

// WithObserver sets the metrics and error reporting hook.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides how session ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

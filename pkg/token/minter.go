package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// Kind tells a minter which of the two session tokens it is producing.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// Request describes the token being minted. Opaque minters ignore it.
type Request struct {
	Kind      Kind
	SessionID string
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}

// Minter produces unguessable token strings. Callers treat the result as
// opaque; sessions are resolved through the store, never by decoding tokens.
type Minter interface {
	Mint(ctx context.Context, req Request) (string, error)
}

// MinterFunc adapts a function to Minter.
type MinterFunc func(ctx context.Context, req Request) (string, error)

func (f MinterFunc) Mint(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const defaultOpaqueSize = 32

// Opaque mints base64url encoded random strings.
type Opaque struct {
	size int
}

// NewOpaque returns a minter producing size random bytes per token. Sizes
// below 16 bytes fall back to 32.
func NewOpaque(size int) *Opaque {
	if size < 16 {
		size = defaultOpaqueSize
	}
	return &Opaque{size: size}
}

func (o *Opaque) Mint(_ context.Context, _ Request) (string, error) {
	size := o.size
	if size == 0 {
		size = defaultOpaqueSize
	}
	return randomString(size)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrRandomFailure, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

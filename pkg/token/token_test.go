package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/token"
)

func TestOpaque(t *testing.T) {
	t.Parallel()

	m := token.NewOpaque(0)
	seen := make(map[string]struct{})
	for range 100 {
		tok, err := m.Mint(context.Background(), token.Request{})
		require.NoError(t, err)
		assert.Len(t, tok, 43) // 32 bytes, raw base64url
		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}

	var zero token.Opaque
	tok, err := zero.Mint(context.Background(), token.Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestJWT(t *testing.T) {
	t.Parallel()

	_, err := token.NewJWT(nil)
	assert.ErrorIs(t, err, token.ErrMissingSigningKey)

	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m, err := token.NewJWT([]byte("0123456789abcdef0123456789abcdef"), token.WithIssuer("sessiond"), token.WithJWTClock(clock))
	require.NoError(t, err)

	req := token.Request{
		Kind:      token.Refresh,
		SessionID: "sess-1",
		UserID:    "user-1",
		TenantID:  "tenant-1",
		ExpiresAt: now.Add(time.Hour),
	}

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		tok, err := m.Mint(context.Background(), req)
		require.NoError(t, err)

		claims, err := m.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "tenant-1", claims.TenantID)
		assert.Equal(t, "sess-1", claims.SessionID)
		assert.Equal(t, token.Refresh, claims.Kind)
		assert.Equal(t, "sessiond", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("unique per mint", func(t *testing.T) {
		t.Parallel()
		a, err := m.Mint(context.Background(), req)
		require.NoError(t, err)
		b, err := m.Mint(context.Background(), req)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		expired := req
		expired.ExpiresAt = now.Add(-time.Minute)
		tok, err := m.Mint(context.Background(), expired)
		require.NoError(t, err)

		_, err = m.Parse(tok)
		assert.ErrorIs(t, err, token.ErrExpiredToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		tok, err := m.Mint(context.Background(), req)
		require.NoError(t, err)

		other, err := token.NewJWT([]byte("another-key-another-key-another!!"), token.WithJWTClock(clock))
		require.NoError(t, err)
		_, err = other.Parse(tok)
		assert.ErrorIs(t, err, token.ErrInvalidToken)
	})
}

func TestMinterFunc(t *testing.T) {
	t.Parallel()

	var m token.Minter = token.MinterFunc(func(_ context.Context, req token.Request) (string, error) {
		return string(req.Kind) + "-fixed", nil
	})
	tok, err := m.Mint(context.Background(), token.Request{Kind: token.Access})
	require.NoError(t, err)
	assert.Equal(t, "access-fixed", tok)
}

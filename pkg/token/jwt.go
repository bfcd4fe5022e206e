package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by tokens from the JWT minter.
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tid,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Kind      Kind   `json:"typ"`
}

// JWT mints HS256 tokens. Each token gets a random jti so two tokens minted in
// the same second for the same session still differ.
type JWT struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWT minter.
type JWTOption func(*JWT)

func WithIssuer(iss string) JWTOption {
	return func(j *JWT) { j.issuer = iss }
}

// WithJWTClock overrides the time source for iat claims and parsing.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(j *JWT) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJWT creates a minter signing with key.
func NewJWT(key []byte, opts ...JWTOption) (*JWT, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	j := &JWT{key: key, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *JWT) Mint(_ context.Context, req Request) (string, error) {
	jti, err := randomString(16)
	if err != nil {
		return "", err
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			Subject:  req.UserID,
			Issuer:   j.issuer,
			IssuedAt: jwt.NewNumericDate(j.now()),
		},
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		Kind:      req.Kind,
	}
	if !req.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(req.ExpiresAt)
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
}

// Parse verifies a token minted by j and returns its claims. Session checks
// never depend on it; it serves services that only hold the signing key.
func (j *JWT) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return j.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	default:
		return nil, errors.Join(ErrInvalidToken, err)
	}
}

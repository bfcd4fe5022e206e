package token

import "errors"

var (
	ErrInvalidToken      = errors.New("token: invalid token")
	ErrExpiredToken      = errors.New("token: expired")
	ErrMissingSigningKey = errors.New("token: signing key is required")
	ErrRandomFailure     = errors.New("token: random source failed")
)

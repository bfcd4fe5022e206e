package app

import "errors"

var (
	ErrUnknownAuditBackend = errors.New("app.unknown_audit_backend")
	ErrUnknownTokenFormat  = errors.New("app.unknown_token_format")
	ErrMissingSigningKey   = errors.New("app.missing_signing_key")
	ErrUnknownCommand      = errors.New("app.unknown_command")
)

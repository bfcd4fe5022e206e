// Package token mints the access and refresh tokens handed out with a session.
//
// The session manager only needs unguessable strings, so any Minter works.
// Opaque returns random base64url strings; JWT returns signed HS256 tokens
// carrying the subject, tenant and session ids for services that want to read
// them without a store lookup.
//
//	minter := token.NewOpaque(32)
//	access, err := minter.Mint(ctx, token.Request{Kind: token.Access})
package token

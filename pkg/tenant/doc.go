// Package tenant carries the tenant scope of a call.
//
// Every session operation takes an explicit tenant id. When the caller leaves
// it empty, Resolve falls back to a Provider, by default the id placed in the
// context with WithID. The ambient value only fills a gap; it never overrides
// an id the caller passed.
//
//	ctx = tenant.WithID(ctx, "acme")
//	id, err := tenant.Resolve(ctx, tenant.ContextProvider, "") // "acme"
//	id, err = tenant.Resolve(ctx, tenant.ContextProvider, "globex") // "globex"
package tenant

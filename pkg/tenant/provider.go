package tenant

import "context"

// Provider supplies the ambient tenant of a request.
type Provider interface {
	TenantID(ctx context.Context) (string, bool)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, bool)

func (f ProviderFunc) TenantID(ctx context.Context) (string, bool) {
	return f(ctx)
}

// ContextProvider reads the tenant set with WithID.
var ContextProvider Provider = ProviderFunc(IDFromContext)

// Resolve returns explicit when set, otherwise the provider's tenant. An
// explicit id is never replaced by the ambient one.
func Resolve(ctx context.Context, p Provider, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p != nil {
		if id, ok := p.TenantID(ctx); ok && id != "" {
			return id, nil
		}
	}
	return "", ErrNoTenant
}

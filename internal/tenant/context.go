package tenant

import "context"

// tenantContextKey is the context key for the caller's tenant scope.
type tenantContextKey struct{}

// ContextWithTenant returns a context carrying the caller's tenant scope.
// An empty tenantID marks the caller as unscoped.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the caller's tenant scope from a context.
// The second return reports whether a scope was set at all; callers that
// only feed the value to a Policy can ignore it, since policies treat the
// empty string as unscoped.
func TenantFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantContextKey{})
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	if !ok {
		return "", false
	}
	return tenantID, true
}

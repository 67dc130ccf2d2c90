package tenant

import (
	"context"
	"testing"
)

func TestTenantFromContext(t *testing.T) {
	ctx := context.Background()

	if id, ok := TenantFromContext(ctx); ok || id != "" {
		t.Errorf("TenantFromContext(bare) = %q, %v, want empty and false", id, ok)
	}

	ctx = ContextWithTenant(ctx, "org-1")
	if id, ok := TenantFromContext(ctx); !ok || id != "org-1" {
		t.Errorf("TenantFromContext = %q, %v, want org-1 and true", id, ok)
	}

	// Explicit empty scope is present but unscoped.
	ctx = ContextWithTenant(context.Background(), "")
	if id, ok := TenantFromContext(ctx); !ok || id != "" {
		t.Errorf("TenantFromContext(empty scope) = %q, %v, want empty and true", id, ok)
	}
}

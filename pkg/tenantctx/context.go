// Package tenantctx carries the resolved tenant identity on a request context.
//
// The value is constructed once per request by the tenant resolver middleware
// and must never be stored anywhere that outlives the request.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the request-scoped identity of the resolved store.
type Tenant struct {
	ID   snowflake.ID
	Slug string
}

type contextKey struct{}

// WithTenant returns a child context carrying the resolved tenant.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the tenant attached to the context, if any.
func FromContext(ctx context.Context) (Tenant, bool) {
	if ctx == nil {
		return Tenant{}, false
	}
	t, ok := ctx.Value(contextKey{}).(Tenant)
	if !ok || t.ID == 0 {
		return Tenant{}, false
	}
	return t, true
}

// TenantID returns the tenant id attached to the context, if any.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	t, ok := FromContext(ctx)
	return t.ID, ok
}

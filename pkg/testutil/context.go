package testutil

import (
	"context"
	"net/http"

	id "veritrail/pkg/domain"
	"veritrail/pkg/requestcontext"
)

// WithTenant binds a tenant ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the tenantID is not a valid UUID, it will not be added to the context.
func WithTenant(req *http.Request, tenantID string) *http.Request {
	if parsed, err := id.ParseTenantID(tenantID); err == nil {
		return req.WithContext(requestcontext.WithTenantID(req.Context(), parsed))
	}
	return req
}

// WithActor binds an actor ID to the request context.
// If the actorID is not a valid UUID, it will not be added to the context.
func WithActor(req *http.Request, actorID string) *http.Request {
	if parsed, err := id.ParseActorID(actorID); err == nil {
		return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
	}
	return req
}

// WithAuth binds both tenant and actor IDs to the request context.
// This is the typical state for an authenticated request.
// Invalid IDs are silently ignored.
func WithAuth(req *http.Request, tenantID, actorID string) *http.Request {
	ctx := req.Context()
	if tenantID != "" {
		if parsed, err := id.ParseTenantID(tenantID); err == nil {
			ctx = requestcontext.WithTenantID(ctx, parsed)
		}
	}
	if actorID != "" {
		if parsed, err := id.ParseActorID(actorID); err == nil {
			ctx = requestcontext.WithActorID(ctx, parsed)
		}
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), key, value))
}

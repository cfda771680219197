package middleware

import (
	"context"
	"slices"
	"time"
)

type clientContextKey struct{}

// ClientContext describes the authenticated API client of a request.
type ClientContext struct {
	ClientID    string
	Name        string
	Permissions []string
	KeyID       string
	AuthTime    time.Time
}

// HasPermission reports whether the client was granted permission.
func (c ClientContext) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// GetClientContext extracts the authenticated client from ctx.
func GetClientContext(ctx context.Context) (ClientContext, bool) {
	client, ok := ctx.Value(clientContextKey{}).(ClientContext)

	return client, ok
}

// SetClientContext returns a copy of ctx carrying client.
func SetClientContext(ctx context.Context, client ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

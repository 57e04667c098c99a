// Package auth verifies bearer credentials and carries the resulting
// identity through request contexts.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"
)

// Identity is the opaque stable id of a verified user. The identity provider
// mints it; this service only carries it around.
type Identity string

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the key used to store the verified identity in context.
	identityContextKey contextKey = "identity"
)

// GetIdentity retrieves the verified identity from the context.
//
// Returns "" if the request was not authenticated.
func GetIdentity(ctx context.Context) Identity {
	id, ok := ctx.Value(identityContextKey).(Identity)
	if !ok {
		return ""
	}
	return id
}

// GetIdentityFromRequest retrieves the verified identity from the request context.
func GetIdentityFromRequest(r *http.Request) Identity {
	return GetIdentity(r.Context())
}

// SetIdentity stores a verified identity in the context.
//
// This is typically called by authentication middleware after verifying
// a bearer token.
func SetIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

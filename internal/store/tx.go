package store

import "context"

type ctxKey struct{}

var scopeKey = ctxKey{}

// WithScope stores a backend's transaction scope in the context so nested
// WithTransaction calls can collapse into the enclosing transaction instead
// of opening an independent commit point.
func WithScope(ctx context.Context, scope any) context.Context {
	if scope == nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFrom extracts the active transaction scope from the context if present.
// Backends must check the scope belongs to them before reusing it: a scope
// from one store never collapses a transaction on another.
func ScopeFrom(ctx context.Context) (any, bool) {
	scope := ctx.Value(scopeKey)
	return scope, scope != nil
}

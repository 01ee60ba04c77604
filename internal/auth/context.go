package auth

import "context"

// Principal is the authenticated caller. AccountID binds every mutator call
// to one account; it is always passed explicitly, never read from a global.
type Principal struct {
	AccountID  string
	ActorID    string
	TokenID    string
	Admin      bool
	AuthMethod string // jwt or admin_api_key
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}

// CurrentAccountID returns the bound account id, or "" when the context
// carries no authenticated principal.
func CurrentAccountID(ctx context.Context) string {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return principal.AccountID
}

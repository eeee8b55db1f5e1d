package auth

import (
	"context"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Principal is the authenticated caller attached to request contexts.
type Principal struct {
	Address string
	Role    string
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok
}

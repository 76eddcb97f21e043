package auth

import (
	"context"

	"github.com/dukerupert/coinvault/internal/model"
)

type contextKey struct{}

// AuthContext is the authenticated actor attached to a request.
// CompanyID is zero for superadmins. SessionID is zero for bearer tokens.
type AuthContext struct {
	UserID    int64
	CompanyID int64
	Email     string
	Role      model.Role
	SessionID int64
}

// Can reports whether the actor's role grants the capability.
func (ac AuthContext) Can(c Capability) bool {
	return Can(ac.Role, c)
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func CompanyID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.CompanyID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// Allowed reports whether the request's actor holds the capability.
// A request without an actor holds nothing.
func Allowed(ctx context.Context, c Capability) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Can(c)
}

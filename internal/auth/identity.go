package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-ticket-lifecycle/internal/apperror"
)

type Role string

const (
	RoleOrganizer   Role = "organizer"
	RoleBuyer       Role = "buyer"
	RoleMarketplace Role = "marketplace"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOrganizer, RoleBuyer, RoleMarketplace:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is an authenticated caller. ExpiresAt is the token's exp claim,
// zero when the verifier does not know it.
type Identity struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"-"`
}

// HasRole reports whether the identity holds any of roles.
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Require fails with an authorization error unless the identity holds one of
// roles. A nil identity is unauthenticated.
func Require(id *Identity, roles ...Role) error {
	if id == nil || id.ID == "" {
		return apperror.Unauthenticated("authentication required")
	}
	if len(roles) == 0 || id.HasRole(roles...) {
		return nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return apperror.Authorization(fmt.Sprintf("requires role %s", strings.Join(names, " or ")))
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity the middleware attached, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// UserID extracts the caller id in handlers.
func UserID(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.ID
	}
	return ""
}

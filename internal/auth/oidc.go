package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates tokens from an external identity provider. The role
// is read from a top-level "role" claim or from realm roles.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

type oidcClaims struct {
	Sub         string `json:"sub"`
	Role        string `json:"role"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	id, err := identityFromClaims(claims)
	if err != nil {
		return nil, err
	}
	id.ExpiresAt = idToken.Expiry
	return id, nil
}

func identityFromClaims(claims oidcClaims) (*Identity, error) {
	if claims.Sub == "" {
		return nil, errors.New("token carries no subject")
	}
	if role, err := ParseRole(claims.Role); err == nil {
		return &Identity{ID: claims.Sub, Role: role}, nil
	}
	for _, r := range claims.RealmAccess.Roles {
		if role, err := ParseRole(r); err == nil {
			return &Identity{ID: claims.Sub, Role: role}, nil
		}
	}
	return nil, errors.New("token carries no ticketing role")
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest reads the bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Principal, error)
}

// Claims is the HS256 token payload issued by the account service.
type Claims struct {
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return newPrincipal(claims.Subject, append([]string{claims.Role}, claims.Roles...)), nil
}

// Sign issues an HS256 token for p. Used by tooling and tests.
func (v *HMACVerifier) Sign(p Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.UserID
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, string(r))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(p.Role), Roles: roles, RegisteredClaims: claims})
	return token.SignedString(v.secret)
}

// OIDCVerifier validates tokens from an OpenID Connect issuer such as Keycloak.
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

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub         string `json:"sub"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Principal{}, errors.New("failed to parse claims")
	}
	return newPrincipal(claims.Sub, claims.RealmAccess.Roles), nil
}

func newPrincipal(userID string, raw []string) Principal {
	roles := knownRoles(raw)
	return Principal{UserID: userID, Role: pickRole(roles), Roles: roles}
}

// knownRoles keeps the recognised roles of a token in priority order.
func knownRoles(raw []string) []Role {
	have := make(map[Role]bool, len(raw))
	for _, r := range raw {
		if role, ok := ParseRole(strings.ToLower(r)); ok {
			have[role] = true
		}
	}
	roles := make([]Role, 0, len(have))
	for _, r := range rolePriority {
		if have[r] {
			roles = append(roles, r)
		}
	}
	return roles
}

// pickRole returns the strongest of roles, defaulting to customer.
func pickRole(roles []Role) Role {
	if len(roles) == 0 {
		return RoleCustomer
	}
	return roles[0]
}

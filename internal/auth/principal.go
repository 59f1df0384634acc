package auth

import "context"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleInvestor Role = "investor"
	RoleAdmin    Role = "admin"
)

// rolePriority picks the strongest role when a token carries several.
var rolePriority = []Role{RoleAdmin, RoleStaff, RoleInvestor, RoleCustomer}

func ParseRole(s string) (Role, bool) {
	for _, r := range rolePriority {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Principal is the authenticated caller of a request. Role is the strongest
// of Roles and drives the staff and admin checks.
type Principal struct {
	UserID string
	Role   Role
	Roles  []Role
}

// HasRole reports whether the caller's token granted r.
func (p Principal) HasRole(r Role) bool {
	if p.Role == r {
		return true
	}
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsStaff is true for staff and admins.
func (p Principal) IsStaff() bool { return p.Role == RoleStaff || p.Role == RoleAdmin }

// CanAccess reports whether p may read or modify a resource owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsStaff() || (p.UserID != "" && p.UserID == ownerID)
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserID extracts the caller's id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.UserID
}

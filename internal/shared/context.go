package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role classifies an authenticated principal.
type Role string

const (
	RoleCompany  Role = "company"
	RoleSupplier Role = "supplier"
	RoleCustomer Role = "customer"
)

// ParseRole normalises raw role input.
func ParseRole(raw string) (Role, bool) {
	role := Role(Normalize(raw))
	return role, role.IsValid()
}

// IsValid reports whether role is supported.
func (r Role) IsValid() bool {
	switch r {
	case RoleCompany, RoleSupplier, RoleCustomer:
		return true
	default:
		return false
	}
}

// Principal is the authenticated actor attached to every operation.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// Is reports whether the principal holds role and id.
func (p Principal) Is(role Role, id uuid.UUID) bool {
	return p.Role == role && p.ID == id
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

var folder = cases.Lower(language.Und)

// Normalize trims and lower-cases enum-like input such as statuses, units and roles.
func Normalize(raw string) string {
	return folder.String(strings.TrimSpace(raw))
}

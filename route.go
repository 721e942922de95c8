package auth

// RouteClass is a coarse access category used to gate rendering
type RouteClass string

const (
	RoutePublic RouteClass = "public"
	RouteMentor RouteClass = "mentor"
	RouteAdmin  RouteClass = "admin"
)

// RequiredRoles returns the set of acceptable roles for the route class.
// A nil result means the class is open to everyone.
func (c RouteClass) RequiredRoles() []UserRole {
	switch c {
	case RouteAdmin:
		return []UserRole{RoleAdmin, RoleSuperAdmin}
	case RouteMentor:
		return []UserRole{RoleMentor, RoleAdmin, RoleSuperAdmin}
	case RoutePublic:
		return nil
	default:
		// unknown classes are treated as the strictest one
		return []UserRole{RoleAdmin, RoleSuperAdmin}
	}
}

// Allows reports whether an identity may access the route class.
func (c RouteClass) Allows(identity *Identity) bool {
	required := c.RequiredRoles()
	if required == nil {
		return true
	}
	if identity == nil {
		return false
	}
	return HasRole(identity.Role, required...)
}

package auth

import "strings"

// UserRole is the dashboard role issued by the backend
type UserRole string

const (
	// RoleUnknown is any role string we do not recognize, it satisfies nothing
	RoleUnknown UserRole = ""
	// RoleUser is a regular platform user
	RoleUser UserRole = "user"
	// RoleMentor can access mentor areas
	RoleMentor UserRole = "mentor"
	// RoleAdmin can manage dashboard content
	RoleAdmin UserRole = "admin"
	// RoleSuperAdmin can do everything an admin can
	RoleSuperAdmin UserRole = "superadmin"
)

var roleHierarchy = map[UserRole]int{
	RoleUser:       1,
	RoleMentor:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Level returns the position of the role in the hierarchy, 0 for unknown roles.
func (r UserRole) Level() int {
	return roleHierarchy[r]
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	return r.Level() > 0
}

// IsAtLeast checks if this role meets the minimum required level.
// Unknown roles never satisfy a requirement, and an unknown
// requirement is never satisfied.
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	current := r.Level()
	required := minRole.Level()
	if current == 0 || required == 0 {
		return false
	}
	return current >= required
}

func (r UserRole) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleMentor,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a UserRole. Unknown
// values map to RoleUnknown.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(roleStr)))
	if !role.IsValid() {
		return RoleUnknown, false
	}
	return role, true
}

// HasRole reports whether actual satisfies at least one of the
// required roles, each compared as a minimum level.
func HasRole(actual UserRole, required ...UserRole) bool {
	for _, req := range required {
		if actual.IsAtLeast(req) {
			return true
		}
	}
	return false
}

// RoleFromMetadata derives the role from backend session metadata.
// A missing role defaults to RoleUser, a present but unrecognized
// role maps to RoleUnknown.
func RoleFromMetadata(metadata map[string]any) UserRole {
	if metadata == nil {
		return RoleUser
	}

	raw, ok := metadata["role"]
	if !ok || raw == nil {
		return RoleUser
	}

	str, ok := raw.(string)
	if !ok {
		return RoleUnknown
	}

	if strings.TrimSpace(str) == "" {
		return RoleUser
	}

	role, _ := ParseRole(str)
	return role
}

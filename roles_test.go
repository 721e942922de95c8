package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/assert"
)

func TestUserRole_IsAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		role     auth.UserRole
		min      auth.UserRole
		expected bool
	}{
		{"superadmin satisfies admin", auth.RoleSuperAdmin, auth.RoleAdmin, true},
		{"admin satisfies admin", auth.RoleAdmin, auth.RoleAdmin, true},
		{"admin satisfies mentor", auth.RoleAdmin, auth.RoleMentor, true},
		{"mentor does not satisfy admin", auth.RoleMentor, auth.RoleAdmin, false},
		{"user does not satisfy mentor", auth.RoleUser, auth.RoleMentor, false},
		{"unknown satisfies nothing", auth.RoleUnknown, auth.RoleUser, false},
		{"unrecognized string satisfies nothing", auth.UserRole("owner"), auth.RoleUser, false},
		{"unknown requirement is never met", auth.RoleSuperAdmin, auth.UserRole("root"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.role.IsAtLeast(tt.min))
		})
	}
}

func TestHasRole(t *testing.T) {
	assert.True(t, auth.HasRole(auth.RoleMentor, auth.RoleAdmin, auth.RoleMentor))
	assert.True(t, auth.HasRole(auth.RoleSuperAdmin, auth.RoleAdmin))
	assert.False(t, auth.HasRole(auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin))
	assert.False(t, auth.HasRole(auth.RoleAdmin))
}

func TestParseRole(t *testing.T) {
	role, ok := auth.ParseRole("  Admin ")
	assert.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)

	role, ok = auth.ParseRole("owner")
	assert.False(t, ok)
	assert.Equal(t, auth.RoleUnknown, role)
}

func TestRoleFromMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		expected auth.UserRole
	}{
		{"nil metadata defaults to user", nil, auth.RoleUser},
		{"missing role defaults to user", map[string]any{"plan": "pro"}, auth.RoleUser},
		{"empty role defaults to user", map[string]any{"role": ""}, auth.RoleUser},
		{"mentor", map[string]any{"role": "mentor"}, auth.RoleMentor},
		{"superadmin", map[string]any{"role": "superadmin"}, auth.RoleSuperAdmin},
		{"unrecognized role", map[string]any{"role": "owner"}, auth.RoleUnknown},
		{"non string role", map[string]any{"role": 3}, auth.RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.RoleFromMetadata(tt.metadata))
		})
	}
}

func TestRouteClass_Allows(t *testing.T) {
	admin := &auth.Identity{ID: "1", Role: auth.RoleAdmin}
	mentor := &auth.Identity{ID: "2", Role: auth.RoleMentor}
	user := &auth.Identity{ID: "3", Role: auth.RoleUser}
	unknown := &auth.Identity{ID: "4", Role: auth.UserRole("owner")}

	assert.True(t, auth.RoutePublic.Allows(nil))
	assert.True(t, auth.RoutePublic.Allows(unknown))

	assert.True(t, auth.RouteAdmin.Allows(admin))
	assert.False(t, auth.RouteAdmin.Allows(mentor))
	assert.False(t, auth.RouteAdmin.Allows(nil))

	assert.True(t, auth.RouteMentor.Allows(mentor))
	assert.True(t, auth.RouteMentor.Allows(admin))
	assert.False(t, auth.RouteMentor.Allows(user))
	assert.False(t, auth.RouteMentor.Allows(unknown))

	// classes we do not know about behave like admin routes
	assert.False(t, auth.RouteClass("reports").Allows(mentor))
	assert.True(t, auth.RouteClass("reports").Allows(admin))
}

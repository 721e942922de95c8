package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/assert"
)

func TestProfilePatch_Validate(t *testing.T) {
	tests := []struct {
		name    string
		patch   auth.ProfilePatch
		wantErr bool
	}{
		{"empty patch", auth.ProfilePatch{}, false},
		{"full valid patch", auth.ProfilePatch{
			DisplayName: strPtr("Ana"),
			AvatarURL:   strPtr("https://cdn.example.com/a.png"),
			Gender:      strPtr("non-binary"),
			Phone:       strPtr("+14155552671"),
		}, false},
		{"clearing the phone", auth.ProfilePatch{Phone: strPtr("")}, false},
		{"blank display name", auth.ProfilePatch{DisplayName: strPtr("")}, true},
		{"bad avatar url", auth.ProfilePatch{AvatarURL: strPtr("not a url")}, true},
		{"unknown gender", auth.ProfilePatch{Gender: strPtr("robot")}, true},
		{"bad phone", auth.ProfilePatch{Phone: strPtr("12")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, auth.IsValidationFailure(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

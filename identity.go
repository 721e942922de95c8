package auth

import "time"

// Identity is the resolved principal for the current session
type Identity struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
	Profile *Profile `json:"profile,omitempty"`
}

// Profile holds the extended attributes we read from the profiles table
type Profile struct {
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Birthdate   *time.Time `json:"birthdate,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ProfilePatch is a partial profile update, nil fields are left untouched
type ProfilePatch struct {
	DisplayName *string    `json:"display_name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Birthdate   *time.Time `json:"birthdate,omitempty"`
}

// IsEmpty reports whether the patch carries no changes
func (p ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil &&
		p.AvatarURL == nil &&
		p.Gender == nil &&
		p.Phone == nil &&
		p.Birthdate == nil
}

// Apply returns a new profile with the patch merged on top of base.
// base may be nil.
func (p ProfilePatch) Apply(base *Profile) *Profile {
	out := base.Clone()
	if out == nil {
		out = &Profile{}
	}

	if p.DisplayName != nil {
		out.DisplayName = *p.DisplayName
	}
	if p.AvatarURL != nil {
		out.AvatarURL = *p.AvatarURL
	}
	if p.Gender != nil {
		out.Gender = *p.Gender
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	if p.Birthdate != nil {
		out.Birthdate = copyTime(p.Birthdate)
	}

	return out
}

// Clone returns a deep copy of the identity
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Profile = i.Profile.Clone()
	return &out
}

// Equal compares two identities by value
func (i *Identity) Equal(other *Identity) bool {
	if i == nil || other == nil {
		return i == nil && other == nil
	}
	return i.ID == other.ID &&
		i.Email == other.Email &&
		i.Role == other.Role &&
		i.Profile.Equal(other.Profile)
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Birthdate = copyTime(p.Birthdate)
	out.CreatedAt = copyTime(p.CreatedAt)
	out.UpdatedAt = copyTime(p.UpdatedAt)
	return &out
}

// Equal compares two profiles by value
func (p *Profile) Equal(other *Profile) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return p.DisplayName == other.DisplayName &&
		p.AvatarURL == other.AvatarURL &&
		p.Gender == other.Gender &&
		p.Phone == other.Phone &&
		timeEqual(p.Birthdate, other.Birthdate) &&
		timeEqual(p.CreatedAt, other.CreatedAt) &&
		timeEqual(p.UpdatedAt, other.UpdatedAt)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

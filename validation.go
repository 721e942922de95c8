package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse profile phone numbers without a
// country prefix.
var DefaultPhoneRegion = "US"

var allowedGenders = []any{"", "female", "male", "non-binary", "other", "prefer-not-to-say"}

type credentials struct {
	Email    string
	Password string
}

func (c credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(1, 1024)),
	)
}

func validateCredentials(email, password string) error {
	c := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := c.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid sign in credentials").
			WithTextCode(TextCodeInvalidCredentials).
			WithCode(errors.CodeBadRequest)
	}
	return nil
}

// Validate checks the patch fields that are set.
func (p ProfilePatch) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.DisplayName, validation.NilOrNotEmpty, validation.Length(1, 120)),
		validation.Field(&p.AvatarURL, is.URL),
		validation.Field(&p.Gender, validation.In(allowedGenders...)),
		validation.Field(&p.Phone, validation.By(validPhone)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid profile update").
			WithTextCode(TextCodeInvalidProfile).
			WithCode(errors.CodeBadRequest)
	}
	return nil
}

var errInvalidPhone = errors.New("must be a valid phone number", errors.CategoryValidation)

func validPhone(value any) error {
	var phone string
	switch v := value.(type) {
	case *string:
		if v == nil {
			return nil
		}
		phone = *v
	case string:
		phone = v
	default:
		return nil
	}

	if strings.TrimSpace(phone) == "" {
		return nil
	}

	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errInvalidPhone
	}

	return nil
}

package local

import "github.com/goliatone/go-errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password
	ErrInvalidCredentials = errors.New("Invalid login credentials", errors.CategoryAuth).
		WithTextCode("INVALID_CREDENTIALS").
		WithCode(errors.CodeUnauthorized)

	// ErrEmailTaken is returned by Register when the email is in use
	ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
		WithTextCode("EMAIL_TAKEN").
		WithCode(errors.CodeConflict)

	ErrEmptyPassword = errors.New("password must not be empty", errors.CategoryBadInput).
		WithTextCode("EMPTY_PASSWORD").
		WithCode(errors.CodeBadRequest)

	ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
		WithTextCode("TOKEN_EXPIRED").
		WithCode(errors.CodeUnauthorized)

	ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
		WithTextCode("TOKEN_MALFORMED").
		WithCode(errors.CodeUnauthorized)
)

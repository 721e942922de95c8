package auth

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	TextCodeUnknownFailure       = "UNKNOWN_FAILURE"
	TextCodeProfileLookupFailed  = "PROFILE_LOOKUP_FAILED"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS_INPUT"
	TextCodeInvalidProfile       = "INVALID_PROFILE_PATCH"
	TextCodeStoreDisposed        = "STORE_DISPOSED"
	TextCodeNotSignedIn          = "NOT_SIGNED_IN"
	TextCodeUnsupported          = "UNSUPPORTED_OPERATION"
)

// UnknownFailureMessage is surfaced when an error carries no usable message
const UnknownFailureMessage = "An unknown error occurred"

// ErrStoreDisposed is returned by store writes after Dispose
var ErrStoreDisposed = errors.New("session store disposed", errors.CategoryInternal).
	WithTextCode(TextCodeStoreDisposed).
	WithCode(errors.CodeInternal)

// ErrNotSignedIn is returned by operations that need a current identity
var ErrNotSignedIn = errors.New("not signed in", errors.CategoryAuth).
	WithTextCode(TextCodeNotSignedIn).
	WithCode(errors.CodeUnauthorized)

// ErrUnsupported is returned when the backend does not implement an optional capability
var ErrUnsupported = errors.New("operation not supported by backend", errors.CategoryOperation).
	WithTextCode(TextCodeUnsupported).
	WithCode(errors.CodeBadRequest)

// ErrorMessage returns the caller facing message for err, falling back
// to UnknownFailureMessage when there is nothing to show.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}

	return UnknownFailureMessage
}

// IsAuthenticationFailure reports whether err is a backend rejection
func IsAuthenticationFailure(err error) bool {
	return hasTextCode(err, TextCodeAuthenticationFailed)
}

// IsUnknownFailure reports whether err had no inspectable message
func IsUnknownFailure(err error) bool {
	return hasTextCode(err, TextCodeUnknownFailure)
}

// IsValidationFailure reports whether err came from input validation
func IsValidationFailure(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials) || hasTextCode(err, TextCodeInvalidProfile)
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// authFailure maps a backend error into an AuthenticationFailure, or an
// UnknownFailure when the error has nothing to say.
func authFailure(err error) *errors.Error {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return unknownFailure(err)
	}

	return errors.Wrap(err, errors.CategoryAuth, ErrorMessage(err)).
		WithTextCode(TextCodeAuthenticationFailed).
		WithCode(errors.CodeUnauthorized)
}

func unknownFailure(source error) *errors.Error {
	if source == nil {
		return errors.New(UnknownFailureMessage, errors.CategoryInternal).
			WithTextCode(TextCodeUnknownFailure).
			WithCode(errors.CodeInternal)
	}
	return errors.Wrap(source, errors.CategoryInternal, UnknownFailureMessage).
		WithTextCode(TextCodeUnknownFailure).
		WithCode(errors.CodeInternal)
}

func profileLookupFailure(err error, userID string) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "profile lookup failed").
		WithTextCode(TextCodeProfileLookupFailed).
		WithMetadata(map[string]any{"user_id": userID})
}

// recoverToError turns a panic value into an error. Values without a
// usable message become an UnknownFailure.
func recoverToError(r any) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		msg := strings.TrimSpace(v.Error())
		if msg == "" {
			return unknownFailure(v)
		}
		return errors.Wrap(v, errors.CategoryInternal, msg).
			WithCode(errors.CodeInternal)
	case string:
		if strings.TrimSpace(v) == "" {
			return unknownFailure(nil)
		}
		return errors.New(v, errors.CategoryInternal).
			WithCode(errors.CodeInternal)
	default:
		return unknownFailure(fmt.Errorf("panic: %v", v))
	}
}

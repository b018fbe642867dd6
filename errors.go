package comm

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidKeyMaterial = "invalid_key_material"
	TextCodeInvalidToken       = "invalid_token"
	TextCodeSessionExists      = "session_exists"
	TextCodeSessionNotFound    = "session_not_found"
)

// ErrInvalidKeyMaterial is returned when a declared key entry is malformed or
// does not support the requested capability. Fatal at startup.
var ErrInvalidKeyMaterial = errors.New("invalid key material", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidKeyMaterial).
	WithCode(errors.CodeBadRequest)

// ErrInvalidToken is returned when an inbound token fails decryption,
// signature verification, or carries an unknown session domain.
var ErrInvalidToken = errors.New("invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExists is returned when persisting a session whose ID is already
// taken.
var ErrSessionExists = errors.New("a session with that ID already exists", errors.CategoryConflict).
	WithTextCode(TextCodeSessionExists).
	WithCode(errors.CodeConflict)

// ErrSessionNotFound is returned when no session matches a lookup, or when a
// result registration found nothing eligible to update. The caller cannot
// distinguish an unknown attr_id from an already resolved session.
var ErrSessionNotFound = errors.New("session not found", errors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeNotFound)

// IsInvalidKeyMaterial reports whether err stems from key material resolution.
func IsInvalidKeyMaterial(err error) bool {
	return hasTextCode(err, TextCodeInvalidKeyMaterial)
}

// IsInvalidToken reports whether err stems from inbound token validation.
func IsInvalidToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidToken)
}

// IsConflict reports whether err is a duplicate session rejection.
func IsConflict(err error) bool {
	return hasTextCode(err, TextCodeSessionExists)
}

// IsNotFound reports whether err is a missing-session rejection.
func IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// invalidKeyMaterial wraps a resolution failure with the shared text code so
// callers can match it regardless of the underlying parse error.
func invalidKeyMaterial(err error, msg string) error {
	if err == nil {
		return errors.New(msg, errors.CategoryValidation).
			WithTextCode(TextCodeInvalidKeyMaterial).
			WithCode(errors.CodeBadRequest)
	}
	return errors.Wrap(err, errors.CategoryValidation, msg).
		WithTextCode(TextCodeInvalidKeyMaterial).
		WithCode(errors.CodeBadRequest)
}

// invalidToken wraps a token validation failure with the shared text code.
func invalidToken(err error, msg string) error {
	if err == nil {
		return errors.New(msg, errors.CategoryAuth).
			WithTextCode(TextCodeInvalidToken).
			WithCode(errors.CodeUnauthorized)
	}
	return errors.Wrap(err, errors.CategoryAuth, msg).
		WithTextCode(TextCodeInvalidToken).
		WithCode(errors.CodeUnauthorized)
}

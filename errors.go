package users

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// TextCodeInvalidCreds identifies credential mismatches
const TextCodeInvalidCreds = "INVALID_CREDENTIALS"

// TextCodeTokenExpired identifies expired action tokens
const TextCodeTokenExpired = "TOKEN_EXPIRED"

// TextCodeTokenInvalid identifies malformed or tampered action tokens
const TextCodeTokenInvalid = "TOKEN_INVALID"

// TextCodeConfiguration identifies fatal configuration errors
const TextCodeConfiguration = "CONFIGURATION_ERROR"

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrMismatchedHashAndPassword is returned when a password does not match
// its hash. Callers get the same error for unknown users so the two cases
// cannot be told apart.
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode("EMPTY_PASSWORD")

// ErrTooManyLoginAttempts is returned when a user exceeds the attempt
// threshold inside the cool down window
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode("TOO_MANY_ATTEMPTS")

// ErrTokenExpired is returned when an action token is past its max age
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenInvalid is returned when an action token cannot be decoded, its
// signature does not verify, or its purpose does not match the expected one
var ErrTokenInvalid = errors.New("token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid)

// NewConfigurationError builds the fatal error raised during Manager
// initialization when settings validation fails. These are never caught
// internally; startup should abort.
func NewConfigurationError(msg string) *errors.Error {
	return errors.New(msg, errors.CategoryValidation).
		WithTextCode(TextCodeConfiguration)
}

// IsConfigurationError reports whether err carries the configuration
// text code.
func IsConfigurationError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == TextCodeConfiguration
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// isNotFound matches record misses coming out of the repositories, which
// carry their own category, as well as this package's CategoryNotFound
// sentinels
func isNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.IsNotFound(err)
}

// IsTokenInvalidError will check for malformed or tampered tokens
func IsTokenInvalidError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenInvalid) {
		return true
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenInvalid {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}

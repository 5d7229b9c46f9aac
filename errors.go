package signup

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrEmailTaken is returned when registering an email that already has an account.
var ErrEmailTaken = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(goerrors.CodeConflict)

// ErrAccountNotFound is the error we return for non found accounts
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode("ACCOUNT_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is returned when the password does not match the stored hash.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotVerified blocks login until the email has been verified.
var ErrAccountNotVerified = goerrors.New("account email is not verified", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_NOT_VERIFIED").
	WithCode(goerrors.CodeForbidden)

// ErrAlreadyVerified is returned when requesting a new verification link for
// an account that already completed verification. Consuming a second valid
// token is NOT an error; only resend treats verified as a conflict.
var ErrAlreadyVerified = goerrors.New("account is already verified", goerrors.CategoryConflict).
	WithTextCode("ALREADY_VERIFIED").
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a token's encoded expiry has elapsed.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers forgery, malformation, and purpose mismatch.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrDeliveryFailed reports that the notifier could not deliver the
// verification link. Non-fatal: the account record and any state transition
// that preceded the send are kept.
var ErrDeliveryFailed = goerrors.New("verification email could not be delivered", goerrors.CategoryOperation).
	WithTextCode("DELIVERY_FAILED")

// ErrNoEmptyString is the error for empty password input
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the bcrypt mismatch error
var ErrMismatchedHashAndPassword = goerrors.New("hashed password mismatch", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// IsAccountNotFound reports whether err is a missing-account error, either
// the package's rich not-found or the repository layer's record-not-found.
// The repository reports misses under its own database category, so a plain
// category check on one or the other is not enough.
func IsAccountNotFound(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.IsNotFound(err) || repository.IsRecordNotFound(err)
}

// IsTokenExpiredError will check for expired tokens. Structured errors are
// matched by text code since rendered messages are redacted; the string
// match remains for raw jwt library errors.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == ErrTokenExpired.TextCode {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed or forged tokens, by text code
// for structured errors and by message for raw jwt and middleware errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == ErrTokenMalformed.TextCode {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

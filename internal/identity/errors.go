package identity

import "errors"

var (
	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when another identity already owns the email.
	ErrEmailTaken = errors.New("email address is already registered")
	// ErrWeakPassword is returned when a password fails the length policy.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("email address is invalid")
	// ErrNotAnonymous is returned when linking a credential to a non-anonymous identity.
	ErrNotAnonymous = errors.New("identity is not anonymous")
	// ErrNoSession is returned when an operation needs a current session and there is none.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidResetToken is returned for malformed, expired or already-used reset tokens.
	ErrInvalidResetToken = errors.New("password reset token is invalid or expired")
	// ErrResetUnavailable is returned when password reset has no signing secret or mailer.
	ErrResetUnavailable = errors.New("password reset is not configured")
	// ErrNotFound is returned when an identity cannot be located.
	ErrNotFound = errors.New("identity not found")
)

// IsCredentialError reports whether err is a user-correctable credential failure.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidResetToken)
}

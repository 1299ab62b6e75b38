package auth

import "errors"

// Reasons a request fails to authenticate. Clients see them all as one
// generic failure; the specific reason is only logged.
var (
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrMalformedToken    = errors.New("malformed token")
	ErrBadSignature      = errors.New("token signature mismatch")
	ErrExpired           = errors.New("token expired")
	ErrMissingSubject    = errors.New("token has no subject")
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrUnknownSubject    = errors.New("token subject does not exist")
)

// IsAuthFailure reports whether err is one of the authentication failures.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrInvalidCredential,
		ErrMalformedToken,
		ErrBadSignature,
		ErrExpired,
		ErrMissingSubject,
		ErrMissingCredential,
		ErrUnknownSubject,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

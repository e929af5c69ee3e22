package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown operator or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for a missing, malformed, expired or wrongly signed token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidHash is returned for a password hash that is not an Argon2id PHC string.
	ErrInvalidHash = errors.New("invalid password hash")
	// ErrForbidden is returned when a role lacks a permission.
	ErrForbidden = errors.New("insufficient permissions")
)

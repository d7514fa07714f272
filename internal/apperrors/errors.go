package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrCredentialsInvalid = errors.New("credentials invalid")
	ErrIdentityInvalid    = errors.New("identity has no resolvable subject")

	// Expired refresh tokens are reported as not found on purpose
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenReused   = errors.New("refresh token reused")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")

	// Uniform refresh failure surfaced to clients
	// Unknown, expired and replay-revoked refresh tokens must not be distinguishable outside
	ErrSessionInvalid = errors.New("session invalid")

	ErrTokenExpired          = errors.New("access token expired")
	ErrTokenMalformed        = errors.New("access token malformed")
	ErrTokenSignatureInvalid = errors.New("access token signature invalid")

	ErrStoreUnavailable = errors.New("token store unavailable")
)

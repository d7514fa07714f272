package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshTokenStatus string

const (
	RefreshTokenActive  RefreshTokenStatus = "active"
	RefreshTokenRotated RefreshTokenStatus = "rotated"
	RefreshTokenRevoked RefreshTokenStatus = "revoked"
)

// Refresh token rotation record
// Token value itself is the opaque unguessable identifier
type RefreshToken struct {
	Token    string
	UserID   uuid.UUID
	Provider Provider

	// Rotation chain the token belongs to
	// FamilyID is shared by the whole chain, Generation strictly increases along it
	FamilyID   uuid.UUID
	Generation int

	Status    RefreshTokenStatus
	CreatedAt time.Time
	ExpiresAt time.Time

	// Token that replaced this one, nil until rotated
	SuccessorToken *string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Claims carried by a parsed access token
// Validation is stateless so this is everything a caller gets to know
type AuthClaims struct {
	UserID   uuid.UUID
	Provider Provider
}

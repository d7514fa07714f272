package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity provider the user came from
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderKakao Provider = "kakao"
)

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Email     string
	Username  string

	// Empty for social users: they never login with a password
	HashedPassword string

	Provider Provider

	// Subject id on the provider side, nil for local users
	ProviderUserID *string
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nkiryanov/authgate/internal/models"
)

type CreateUserParams struct {
	Email        string
	Username     string
	PasswordHash string
}

type CreateSocialUserParams struct {
	Email          string
	Username       string
	Provider       models.Provider
	ProviderUserID string
}

// User repository interface
type UserRepo interface {
	// Create local user
	// If user with same email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Create user provisioned by an external identity provider
	CreateSocialUser(ctx context.Context, arg CreateSocialUserParams) (models.User, error)

	// Get user by id, local email or (provider, provider user id)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByProvider(ctx context.Context, provider models.Provider, providerUserID string) (models.User, error)
}

// RefreshToken repository interface
// Any backend must offer an atomic conditional transition on the status field
type RefreshTokenRepo interface {
	// Store a new ACTIVE token
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token whatever state it is in
	// If the token does not exist must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenID string) (models.RefreshToken, error)

	// Atomically mark tokenID rotated and store its successor.
	// Successor carries Token, CreatedAt and ExpiresAt; UserID, Provider,
	// FamilyID and Generation (+1) are taken from the parent record.
	// Exactly one concurrent caller on the same tokenID may win.
	// If the token is unknown or expired: apperrors.ErrRefreshTokenNotFound.
	// If the token was rotated or revoked already the whole family must be
	// revoked before failing with apperrors.ErrRefreshTokenReused or
	// apperrors.ErrRefreshTokenRevoked. That is the replay signal.
	Rotate(ctx context.Context, tokenID string, successor models.RefreshToken) (models.RefreshToken, error)

	// Mark token revoked. Idempotent, unknown tokens are fine
	Revoke(ctx context.Context, tokenID string) error

	// Revoke every token of the rotation chain. Idempotent
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error

	// Report whether token exists, is ACTIVE and not expired
	IsActive(ctx context.Context, tokenID string) (bool, error)

	// Drop records that expired before the given time, returns removed count
	// Correctness never depends on this, it only keeps the store small
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
}

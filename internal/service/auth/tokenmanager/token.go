package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 14 * 24 * time.Hour

	// 128 bit of entropy, enough to make refresh tokens unguessable
	refreshTokenBytesLen = 16
)

// Token manager config with sensible defaults
type Config struct {
	// Keys to sign and verify access tokens, newest first
	// At least one is required
	SecretKeys []string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	codec *Codec

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh token repo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	codec, err := NewCodec(cfg.SecretKeys, cfg.Alg)
	if err != nil {
		return nil, err
	}

	return &TokenManager{
		codec:       codec,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshRepo: refreshRepo,
	}, nil
}

// GeneratePair issues an access token and the root of a fresh rotation chain
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	if user.ID == uuid.Nil {
		return pair, fmt.Errorf("can't issue tokens. Err: %w", apperrors.ErrIdentityInvalid)
	}

	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := m.issueAccess(user.ID, user.Provider, now, accessExpiresAt)
	if err != nil {
		return pair, err
	}

	refresh, err := newRefreshTokenID()
	if err != nil {
		return pair, err
	}

	_, err = m.refreshRepo.Save(ctx, models.RefreshToken{
		Token:      refresh,
		UserID:     user.ID,
		Provider:   user.Provider,
		FamilyID:   uuid.New(),
		Generation: 0,
		Status:     models.RefreshTokenActive,
		CreatedAt:  now,
		ExpiresAt:  refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// RefreshPair rotates the refresh token and issues a fresh access token
// bound to the rotated chain
func (m *TokenManager) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	now := time.Now().Truncate(time.Second)

	successorID, err := newRefreshTokenID()
	if err != nil {
		return pair, err
	}

	rotated, err := m.refreshRepo.Rotate(ctx, refresh, models.RefreshToken{
		Token:     successorID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	})
	if err != nil {
		return pair, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	accessExpiresAt := now.Add(m.accessTTL)
	access, err := m.issueAccess(rotated.UserID, rotated.Provider, now, accessExpiresAt)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: rotated.Token, ExpiresAt: rotated.ExpiresAt},
	}, nil
}

// Revoke refresh token, unknown tokens are fine
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	err := m.refreshRepo.Revoke(ctx, refresh)
	if err != nil {
		return fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}
	return nil
}

// Parse and validate access token
// Pure computation: no store is consulted, possession of a validly signed
// unexpired token is sufficient proof
func (m *TokenManager) ParseAccess(_ context.Context, access string) (models.AuthClaims, error) {
	claims, err := m.codec.Decode(access)
	if err != nil {
		return models.AuthClaims{}, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	if claims.UserID == uuid.Nil {
		return models.AuthClaims{}, fmt.Errorf("token without subject. Err: %w", apperrors.ErrTokenMalformed)
	}

	return models.AuthClaims{UserID: claims.UserID, Provider: claims.Provider}, nil
}

func (m *TokenManager) issueAccess(userID uuid.UUID, provider models.Provider, now time.Time, expiresAt time.Time) (string, error) {
	return m.codec.Encode(AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   userID,
		Provider: provider,
	})
}

// Generate random refresh token 16 bytes length
func newRefreshTokenID() (string, error) {
	b := make([]byte, refreshTokenBytesLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}

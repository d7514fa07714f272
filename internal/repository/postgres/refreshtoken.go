package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

// Non-domain failures (dead connection, bad query) mean the backend is
// unavailable, they must stay distinguishable from session errors
func storeErr(err error) error {
	return fmt.Errorf("%w. Err: %v", apperrors.ErrStoreUnavailable, err)
}

const saveToken = `-- name: SaveToken
INSERT INTO refresh_tokens (token, user_id, provider, family_id, generation, status, created_at, expires_at, successor_token)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
RETURNING token, user_id, provider, family_id, generation, status, created_at, expires_at, successor_token
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		token.Token, token.UserID, token.Provider, token.FamilyID,
		token.Generation, token.Status, token.CreatedAt, token.ExpiresAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, storeErr(err)
	}
	return saved, nil
}

const getToken = `-- name: GetToken
SELECT token, user_id, provider, family_id, generation, status, created_at, expires_at, successor_token
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It returns the record even if it expired, rotated or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenID string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenID)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, storeErr(err)
	}
}

const rotateToken = `-- name: RotateToken
WITH parent AS (
	UPDATE refresh_tokens
	SET status = 'rotated', successor_token = $2
	WHERE token = $1 AND status = 'active' AND expires_at > $3
	RETURNING user_id, provider, family_id, generation
)
INSERT INTO refresh_tokens (token, user_id, provider, family_id, generation, status, created_at, expires_at, successor_token)
SELECT $2, user_id, provider, family_id, generation + 1, 'active', $3, $4, NULL
FROM parent
RETURNING token, user_id, provider, family_id, generation, status, created_at, expires_at, successor_token
`

// Rotate the token and insert its successor in a single statement
// The conditional UPDATE serializes concurrent callers: only the one that
// flips status 'active' -> 'rotated' gets the successor row back
func (r *RefreshTokenRepo) Rotate(ctx context.Context, tokenID string, successor models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, rotateToken, tokenID, successor.Token, successor.CreatedAt, successor.ExpiresAt)
	rotated, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return rotated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rotated, r.diagnoseRotateFailure(ctx, tokenID, successor.CreatedAt)
	default:
		return rotated, storeErr(err)
	}
}

// Lost the conditional update: figure out why and punish replay
func (r *RefreshTokenRepo) diagnoseRotateFailure(ctx context.Context, tokenID string, now time.Time) error {
	old, err := r.Get(ctx, tokenID)
	if err != nil {
		return err
	}

	// Expired records behave as not found whatever the stored status is
	if !old.ExpiresAt.After(now) {
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	// Live record that is not active means the token was presented twice.
	// Replay detected: the whole chain dies with it
	if err := r.RevokeFamily(ctx, old.FamilyID); err != nil {
		return err
	}

	switch old.Status {
	case models.RefreshTokenRevoked:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenReused)
	}
}

const revokeToken = `-- name: RevokeToken
UPDATE refresh_tokens
SET status = 'revoked'
WHERE token = $1 AND status <> 'revoked'
`

// Revoke the token. Idempotent, unknown tokens are not an error
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.DB.Exec(ctx, revokeToken, tokenID)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

const revokeFamily = `-- name: RevokeFamily
UPDATE refresh_tokens
SET status = 'revoked'
WHERE family_id = $1 AND status <> 'revoked'
`

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, revokeFamily, familyID)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

const isTokenActive = `-- name: IsTokenActive
SELECT EXISTS (
	SELECT 1 FROM refresh_tokens
	WHERE token = $1 AND status = 'active' AND expires_at > $2
)
`

func (r *RefreshTokenRepo) IsActive(ctx context.Context, tokenID string) (bool, error) {
	var active bool
	err := r.DB.QueryRow(ctx, isTokenActive, tokenID, time.Now()).Scan(&active)
	if err != nil {
		return false, storeErr(err)
	}
	return active, nil
}

const deleteExpired = `-- name: DeleteExpiredTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, before)
	if err != nil {
		return 0, storeErr(err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.Token, &t.UserID, &t.Provider, &t.FamilyID,
		&t.Generation, &t.Status, &t.CreatedAt, &t.ExpiresAt, &t.SuccessorToken,
	)
	return t, err
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (email, username, password_hash, provider, provider_user_id)
VALUES ($1, $2, $3, 'local', NULL)
RETURNING id, created_at, email, username, password_hash, provider, provider_user_id
`

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, arg.Email, arg.Username, arg.PasswordHash)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return user, fmt.Errorf("repo error: %w", apperrors.ErrUserAlreadyExists)
		}
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const createSocialUser = `-- name: CreateSocialUser
INSERT INTO users (email, username, password_hash, provider, provider_user_id)
VALUES ($1, $2, '', $3, $4)
RETURNING id, created_at, email, username, password_hash, provider, provider_user_id
`

func (r *UserRepo) CreateSocialUser(ctx context.Context, arg repository.CreateSocialUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createSocialUser, arg.Email, arg.Username, arg.Provider, arg.ProviderUserID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return user, fmt.Errorf("repo error: %w", apperrors.ErrUserAlreadyExists)
		}
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, email, username, password_hash, provider, provider_user_id
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT id, created_at, email, username, password_hash, provider, provider_user_id
FROM users
WHERE provider = 'local' AND email = $1
`

// Get local user by email
// Social users are looked up by (provider, provider_user_id) instead
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserByProvider = `-- name: GetUserByProvider
SELECT id, created_at, email, username, password_hash, provider, provider_user_id
FROM users
WHERE provider = $1 AND provider_user_id = $2
`

func (r *UserRepo) GetUserByProvider(ctx context.Context, provider models.Provider, providerUserID string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByProvider, provider, providerUserID)
	return collectUser(rows)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.Username, &u.HashedPassword, &u.Provider, &u.ProviderUserID)
	return u, err
}

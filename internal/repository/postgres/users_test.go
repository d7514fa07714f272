package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
	"github.com/nkiryanov/authgate/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create local user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}

			user, err := repo.CreateUser(t.Context(), repository.CreateUserParams{
				Email:        "rama@banana.com",
				Username:     "rama",
				PasswordHash: "hash",
			})

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, user.ID)
			require.Equal(t, "rama@banana.com", user.Email)
			require.Equal(t, "rama", user.Username)
			require.Equal(t, models.ProviderLocal, user.Provider)
			require.Nil(t, user.ProviderUserID)
		})
	})

	t.Run("create user with duplicated email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}
			params := repository.CreateUserParams{
				Email:        "dup@banana.com",
				Username:     "dup",
				PasswordHash: "hash",
			}
			_, err := repo.CreateUser(t.Context(), params)
			require.NoError(t, err)

			_, err = repo.CreateUser(t.Context(), params)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("create social user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}

			user, err := repo.CreateSocialUser(t.Context(), repository.CreateSocialUserParams{
				Email:          "kakao@banana.com",
				Username:       "kakao-user",
				Provider:       models.ProviderKakao,
				ProviderUserID: "12345",
			})

			require.NoError(t, err)
			require.Equal(t, models.ProviderKakao, user.Provider)
			require.NotNil(t, user.ProviderUserID)
			require.Equal(t, "12345", *user.ProviderUserID)
			require.Empty(t, user.HashedPassword, "social users have no password")
		})
	})

	t.Run("create social user with duplicated provider id", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}
			params := repository.CreateSocialUserParams{
				Email:          "kakao-dup@banana.com",
				Username:       "kakao-dup",
				Provider:       models.ProviderKakao,
				ProviderUserID: "777",
			}
			_, err := repo.CreateSocialUser(t.Context(), params)
			require.NoError(t, err)

			_, err = repo.CreateSocialUser(t.Context(), params)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("same email for local and social users is allowed", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}

			_, err := repo.CreateUser(t.Context(), repository.CreateUserParams{
				Email:        "both@banana.com",
				Username:     "local",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			_, err = repo.CreateSocialUser(t.Context(), repository.CreateSocialUserParams{
				Email:          "both@banana.com",
				Username:       "social",
				Provider:       models.ProviderKakao,
				ProviderUserID: "999",
			})
			require.NoError(t, err, "identity is scoped by provider, emails may repeat across providers")
		})
	})

	t.Run("get user by id", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}
			created, err := repo.CreateUser(t.Context(), repository.CreateUserParams{
				Email:        "byid@banana.com",
				Username:     "byid",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			got, err := repo.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
			require.Equal(t, created.Email, got.Email)
		})
	})

	t.Run("get user by email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}
			created, err := repo.CreateUser(t.Context(), repository.CreateUserParams{
				Email:        "byemail@banana.com",
				Username:     "byemail",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			got, err := repo.GetUserByEmail(t.Context(), "byemail@banana.com")

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get user by provider", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}
			created, err := repo.CreateSocialUser(t.Context(), repository.CreateSocialUserParams{
				Email:          "byprovider@banana.com",
				Username:       "byprovider",
				Provider:       models.ProviderKakao,
				ProviderUserID: "424242",
			})
			require.NoError(t, err)

			got, err := repo.GetUserByProvider(t.Context(), models.ProviderKakao, "424242")

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get not existed user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := UserRepo{DB: tx}

			_, err := repo.GetUserByEmail(t.Context(), "nobody@banana.com")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}

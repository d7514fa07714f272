package auth_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository/postgres"
	"github.com/nkiryanov/authgate/internal/service/auth"
	"github.com/nkiryanov/authgate/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authgate/internal/service/kakao"
	"github.com/nkiryanov/authgate/internal/service/user"
	"github.com/nkiryanov/authgate/internal/testutil"
)

type fakeExchanger struct {
	result kakao.ExchangeResult
	err    error
}

func (f fakeExchanger) Exchange(_ context.Context, _ string) (kakao.ExchangeResult, error) {
	return f.result, f.err
}

// downRefreshRepo fails every call the way repositories report a dead
// backend: wrapping ErrStoreUnavailable around the transport error
type downRefreshRepo struct{}

func (downRefreshRepo) storeErr() error {
	return fmt.Errorf("%w. Err: connection refused", apperrors.ErrStoreUnavailable)
}

func (r downRefreshRepo) Save(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	return token, r.storeErr()
}

func (r downRefreshRepo) Get(_ context.Context, _ string) (models.RefreshToken, error) {
	return models.RefreshToken{}, r.storeErr()
}

func (r downRefreshRepo) Rotate(_ context.Context, _ string, successor models.RefreshToken) (models.RefreshToken, error) {
	return successor, r.storeErr()
}

func (r downRefreshRepo) Revoke(_ context.Context, _ string) error { return r.storeErr() }

func (r downRefreshRepo) RevokeFamily(_ context.Context, _ uuid.UUID) error { return r.storeErr() }

func (r downRefreshRepo) IsActive(_ context.Context, _ string) (bool, error) {
	return false, r.storeErr()
}

func (r downRefreshRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, r.storeErr()
}

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	kakaoIdentity := kakao.ExchangeResult{
		Provider:       models.ProviderKakao,
		ProviderUserID: "12345",
		Email:          "kakao@banana.com",
		Nickname:       "kakao-rama",
	}

	// Begin new db transaction and create auth service on top of it
	// Rollback transaction when test stops
	withService := func(t *testing.T, exchanger fakeExchanger, fn func(s *auth.Service)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			userService := user.NewService(nil, &postgres.UserRepo{DB: tx})

			tokenManager, err := tokenmanager.New(
				tokenmanager.Config{SecretKeys: []string{"test-secret-key"}},
				&postgres.RefreshTokenRepo{DB: tx},
			)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := auth.NewService(tokenManager, userService, exchanger, nil)
			require.NoError(t, err, "auth service couldn't be started")

			fn(s)
		})
	}

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				pair, err := s.Register(t.Context(), "rama@banana.com", "rama", "password123")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value)
				require.NotEmpty(t, pair.Refresh.Value)

				claims, err := s.Validate(t.Context(), pair.Access.Value)
				require.NoError(t, err)
				require.Equal(t, models.ProviderLocal, claims.Provider)
			})
		})

		t.Run("duplicated email", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				_, err := s.Register(t.Context(), "dup@banana.com", "first", "password123")
				require.NoError(t, err)

				_, err = s.Register(t.Context(), "dup@banana.com", "second", "password123")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("valid credentials", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				_, err := s.Register(t.Context(), "login@banana.com", "login", "password123")
				require.NoError(t, err)

				pair, err := s.Login(t.Context(), "login@banana.com", "password123")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value)
				require.NotEmpty(t, pair.Refresh.Value)
			})
		})

		t.Run("wrong password", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				_, err := s.Register(t.Context(), "wrong@banana.com", "wrong", "password123")
				require.NoError(t, err)

				_, err = s.Login(t.Context(), "wrong@banana.com", "not-the-password")

				require.ErrorIs(t, err, apperrors.ErrCredentialsInvalid)
			})
		})
	})

	t.Run("LoginKakao", func(t *testing.T) {
		t.Run("first login provisions user", func(t *testing.T) {
			withService(t, fakeExchanger{result: kakaoIdentity}, func(s *auth.Service) {
				pair, err := s.LoginKakao(t.Context(), "valid-code")

				require.NoError(t, err)

				claims, err := s.Validate(t.Context(), pair.Access.Value)
				require.NoError(t, err)
				require.Equal(t, models.ProviderKakao, claims.Provider)
			})
		})

		t.Run("second login resolves same user", func(t *testing.T) {
			withService(t, fakeExchanger{result: kakaoIdentity}, func(s *auth.Service) {
				first, err := s.LoginKakao(t.Context(), "valid-code")
				require.NoError(t, err)
				second, err := s.LoginKakao(t.Context(), "another-code")
				require.NoError(t, err)

				firstClaims, err := s.Validate(t.Context(), first.Access.Value)
				require.NoError(t, err)
				secondClaims, err := s.Validate(t.Context(), second.Access.Value)
				require.NoError(t, err)

				require.Equal(t, firstClaims.UserID, secondClaims.UserID)
			})
		})

		t.Run("exchange failure passes through", func(t *testing.T) {
			exchangeErr := kakao.NewProviderError(kakao.CodeInvalidCode, nil)
			withService(t, fakeExchanger{err: exchangeErr}, func(s *auth.Service) {
				_, err := s.LoginKakao(t.Context(), "spent-code")

				var providerErr *kakao.ProviderError
				require.ErrorAs(t, err, &providerErr)
				require.Equal(t, kakao.CodeInvalidCode, providerErr.Code)
			})
		})
	})

	t.Run("RefreshPair", func(t *testing.T) {
		t.Run("login then refresh", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				pair, err := s.Register(t.Context(), "refresh@banana.com", "refresh", "password123")
				require.NoError(t, err)

				refreshed, err := s.RefreshPair(t.Context(), pair.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, pair.Refresh.Value, refreshed.Refresh.Value)

				claims, err := s.Validate(t.Context(), refreshed.Access.Value)
				require.NoError(t, err)
				require.NotEmpty(t, claims.UserID)
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				_, err := s.RefreshPair(t.Context(), "no-such-token")

				require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
			})
		})

		t.Run("replayed token gets the same uniform error", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				pair, err := s.Register(t.Context(), "replay@banana.com", "replay", "password123")
				require.NoError(t, err)

				refreshed, err := s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.NoError(t, err)

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)

				require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
				require.NotErrorIs(t, err, apperrors.ErrRefreshTokenReused, "replay detection must not leak to the caller")

				// Family is revoked: the legit successor is dead too
				_, err = s.RefreshPair(t.Context(), refreshed.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
			})
		})

		t.Run("store outage is not a session error", func(t *testing.T) {
			tokenManager, err := tokenmanager.New(
				tokenmanager.Config{SecretKeys: []string{"test-secret-key"}},
				downRefreshRepo{},
			)
			require.NoError(t, err)

			userService := user.NewService(nil, &postgres.UserRepo{DB: pg.Pool})
			s, err := auth.NewService(tokenManager, userService, fakeExchanger{}, nil)
			require.NoError(t, err)

			_, err = s.RefreshPair(t.Context(), "some-refresh-token")

			require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
			require.NotErrorIs(t, err, apperrors.ErrSessionInvalid, "outage must not tell the user to log in again")
		})

		t.Run("refresh after logout", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				pair, err := s.Register(t.Context(), "logout@banana.com", "logout", "password123")
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), pair.Refresh.Value))

				_, err = s.RefreshPair(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("idempotent", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				pair, err := s.Register(t.Context(), "twice@banana.com", "twice", "password123")
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), pair.Refresh.Value))
				require.NoError(t, s.Logout(t.Context(), pair.Refresh.Value))
				require.NoError(t, s.Logout(t.Context(), "no-such-token"))
			})
		})
	})

	t.Run("Validate", func(t *testing.T) {
		t.Run("expired access token", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				tokenManager, err := tokenmanager.New(
					tokenmanager.Config{
						SecretKeys: []string{"test-secret-key"},
						AccessTTL:  -time.Minute,
					},
					&postgres.RefreshTokenRepo{DB: tx},
				)
				require.NoError(t, err)

				userService := user.NewService(nil, &postgres.UserRepo{DB: tx})
				s, err := auth.NewService(tokenManager, userService, fakeExchanger{}, nil)
				require.NoError(t, err)

				pair, err := s.Register(t.Context(), "expired@banana.com", "expired", "password123")
				require.NoError(t, err)

				_, err = s.Validate(t.Context(), pair.Access.Value)

				require.ErrorIs(t, err, apperrors.ErrTokenExpired, "expiry must stay distinguishable")
			})
		})

		t.Run("garbage access token", func(t *testing.T) {
			withService(t, fakeExchanger{}, func(s *auth.Service) {
				_, err := s.Validate(t.Context(), "garbage")

				require.ErrorIs(t, err, apperrors.ErrTokenMalformed)
			})
		})
	})
}

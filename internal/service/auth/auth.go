// Package auth composes the token manager, the identity lookup collaborator
// and the Kakao federation client into the public authentication flows.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/service/kakao"
)

// Identity lookup collaborator
// Implemented by user.UserService
type userProvider interface {
	CreateUser(ctx context.Context, email string, username string, password string) (models.User, error)
	FindByCredentials(ctx context.Context, email string, password string) (models.User, error)
	FindOrProvisionProviderUser(ctx context.Context, provider models.Provider, providerUserID string, email string, username string) (models.User, error)
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)
	Revoke(ctx context.Context, refresh string) error
	ParseAccess(ctx context.Context, access string) (models.AuthClaims, error)
}

type kakaoExchanger interface {
	Exchange(ctx context.Context, code string) (kakao.ExchangeResult, error)
}

type Service struct {
	token  tokenManager
	users  userProvider
	kakao  kakaoExchanger
	logger logger.Logger
}

func NewService(token tokenManager, users userProvider, kakao kakaoExchanger, l logger.Logger) (*Service, error) {
	if token == nil || users == nil {
		return nil, errors.New("token manager and user provider must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		token:  token,
		users:  users,
		kakao:  kakao,
		logger: l,
	}, nil
}

// Register local user and issue the first token pair
func (s *Service) Register(ctx context.Context, email string, username string, password string) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, email, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Login verifies local credentials and issues a token pair rooting a new
// rotation chain
func (s *Service) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	user, err := s.users.FindByCredentials(ctx, email, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// LoginKakao resolves the identity through the server side code exchange
// and issues a token pair. Identity fields never come from the client:
// only what the provider returned is used to resolve or provision the user
func (s *Service) LoginKakao(ctx context.Context, code string) (models.TokenPair, error) {
	if s.kakao == nil {
		return models.TokenPair{}, errors.New("kakao login is not configured")
	}

	res, err := s.kakao.Exchange(ctx, code)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.FindOrProvisionProviderUser(ctx, res.Provider, res.ProviderUserID, res.Email, res.Nickname)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// RefreshPair rotates the refresh token and returns a fresh pair.
// Whatever went wrong with the token itself the caller gets a uniform
// ErrSessionInvalid: leaking that a replay was detected would tell an
// attacker they were caught
func (s *Service) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	pair, err := s.token.RefreshPair(ctx, refresh)
	if err == nil {
		return pair, nil
	}

	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return models.TokenPair{}, err
	}

	if errors.Is(err, apperrors.ErrRefreshTokenReused) || errors.Is(err, apperrors.ErrRefreshTokenRevoked) {
		// Security relevant event: the token family was revoked
		s.logger.Warn("Refresh token replay detected, rotation chain revoked")
	}

	return models.TokenPair{}, fmt.Errorf("can't refresh tokens. Err: %w", apperrors.ErrSessionInvalid)
}

// Logout revokes the refresh token. Idempotent: already revoked or plain
// unknown tokens are not an error
func (s *Service) Logout(ctx context.Context, refresh string) error {
	return s.token.Revoke(ctx, refresh)
}

// Validate checks access token signature and expiry.
// Stateless: failure kinds stay distinguishable, there is nothing to hide
func (s *Service) Validate(ctx context.Context, access string) (models.AuthClaims, error) {
	return s.token.ParseAccess(ctx, access)
}

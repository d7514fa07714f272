// Package user resolves and provisions identities.
// It is the lookup collaborator the auth orchestrator delegates to: local
// users are verified by credentials, social users are keyed on the pair
// (provider, provider user id) and provisioned on first login.
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
	"github.com/nkiryanov/authgate/internal/service/auth"
)

type UserService struct {
	hasher   auth.PasswordHasher
	userRepo repository.UserRepo
}

func NewService(hasher auth.PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
	}
}

func (s *UserService) CreateUser(ctx context.Context, email string, username string, password string) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// FindByCredentials verifies email and password of a local user
// Unknown email and wrong password are indistinguishable on purpose
func (s *UserService) FindByCredentials(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("can't verify credentials. Err: %w", apperrors.ErrCredentialsInvalid)
		}
		return models.User{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, fmt.Errorf("can't verify credentials. Err: %w", apperrors.ErrCredentialsInvalid)
	}

	return user, nil
}

// FindOrProvisionProviderUser resolves a social user, creating it on first login
func (s *UserService) FindOrProvisionProviderUser(ctx context.Context, provider models.Provider, providerUserID string, email string, username string) (models.User, error) {
	user, err := s.userRepo.GetUserByProvider(ctx, provider, providerUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return models.User{}, err
	}

	user, err = s.userRepo.CreateSocialUser(ctx, repository.CreateSocialUserParams{
		Email:          email,
		Username:       username,
		Provider:       provider,
		ProviderUserID: providerUserID,
	})
	if err == nil {
		return user, nil
	}

	// Concurrent first login may have created the user already
	if errors.Is(err, apperrors.ErrUserAlreadyExists) {
		return s.userRepo.GetUserByProvider(ctx, provider, providerUserID)
	}

	return models.User{}, fmt.Errorf("can't provision social user. Err: %w", err)
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

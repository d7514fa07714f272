// Package memory keeps refresh tokens in process memory.
// It backs unit tests and single node development runs, the semantics are
// the same as the postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type RefreshTokenRepo struct {
	mu       sync.Mutex
	tokens   map[string]models.RefreshToken
	families map[uuid.UUID][]string
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return &RefreshTokenRepo{
		tokens:   make(map[string]models.RefreshToken),
		families: make(map[uuid.UUID][]string),
	}
}

func (r *RefreshTokenRepo) Save(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.Token]; ok {
		return token, fmt.Errorf("%w. Err: token %q exists already", apperrors.ErrStoreUnavailable, token.Token)
	}

	r.tokens[token.Token] = token
	r.families[token.FamilyID] = append(r.families[token.FamilyID], token.Token)
	return token, nil
}

func (r *RefreshTokenRepo) Get(_ context.Context, tokenID string) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
	return token, nil
}

// Rotate under the lock, so exactly one concurrent caller wins
func (r *RefreshTokenRepo) Rotate(_ context.Context, tokenID string, successor models.RefreshToken) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.tokens[tokenID]
	if !ok {
		return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	// Expired records behave as not found whatever the stored status is
	if !old.ExpiresAt.After(successor.CreatedAt) {
		return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	if old.Status != models.RefreshTokenActive {
		// Replay detected: the whole chain dies with the replayed token
		r.revokeFamilyLocked(old.FamilyID)

		if old.Status == models.RefreshTokenRevoked {
			return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
		}
		return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenReused)
	}

	old.Status = models.RefreshTokenRotated
	old.SuccessorToken = &successor.Token
	r.tokens[tokenID] = old

	successor.UserID = old.UserID
	successor.Provider = old.Provider
	successor.FamilyID = old.FamilyID
	successor.Generation = old.Generation + 1
	successor.Status = models.RefreshTokenActive
	successor.SuccessorToken = nil

	r.tokens[successor.Token] = successor
	r.families[successor.FamilyID] = append(r.families[successor.FamilyID], successor.Token)
	return successor, nil
}

func (r *RefreshTokenRepo) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return nil
	}

	token.Status = models.RefreshTokenRevoked
	r.tokens[tokenID] = token
	return nil
}

func (r *RefreshTokenRepo) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revokeFamilyLocked(familyID)
	return nil
}

func (r *RefreshTokenRepo) revokeFamilyLocked(familyID uuid.UUID) {
	for _, tokenID := range r.families[familyID] {
		token, ok := r.tokens[tokenID]
		if !ok {
			continue
		}
		token.Status = models.RefreshTokenRevoked
		r.tokens[tokenID] = token
	}
}

func (r *RefreshTokenRepo) IsActive(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return false, nil
	}
	return token.Status == models.RefreshTokenActive && token.ExpiresAt.After(time.Now()), nil
}

func (r *RefreshTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for tokenID, token := range r.tokens {
		if token.ExpiresAt.Before(before) {
			delete(r.tokens, tokenID)
			deleted++
		}
	}
	return deleted, nil
}

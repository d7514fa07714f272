package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

// downDB fails every call the way a dead connection does
type downDB struct {
	err error
}

func (d downDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return downRows{err: d.err}, d.err
}

func (d downDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return downRows{err: d.err}
}

func (d downDB) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, d.err
}

type downRows struct {
	err error
}

func (r downRows) Close()                                       {}
func (r downRows) Err() error                                   { return r.err }
func (r downRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r downRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r downRows) Next() bool                                   { return false }
func (r downRows) Scan(_ ...any) error                          { return r.err }
func (r downRows) Values() ([]any, error)                       { return nil, r.err }
func (r downRows) RawValues() [][]byte                          { return nil }
func (r downRows) Conn() *pgx.Conn                              { return nil }

func Test_RefreshTokenRepo_StoreUnavailable(t *testing.T) {
	t.Parallel()

	connRefused := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	repo := RefreshTokenRepo{DB: downDB{err: connRefused}}

	requireUnavailable := func(t *testing.T, err error) {
		t.Helper()
		require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
		require.NotErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "backend outage must not look like a client error")
		require.NotErrorIs(t, err, apperrors.ErrRefreshTokenReused)
		require.NotErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	}

	t.Run("save", func(t *testing.T) {
		_, err := repo.Save(t.Context(), models.RefreshToken{Token: "t-root"})
		requireUnavailable(t, err)
	})

	t.Run("get", func(t *testing.T) {
		_, err := repo.Get(t.Context(), "t-root")
		requireUnavailable(t, err)
	})

	t.Run("rotate", func(t *testing.T) {
		_, err := repo.Rotate(t.Context(), "t-root", successorFor("t-next"))
		requireUnavailable(t, err)
	})

	t.Run("revoke", func(t *testing.T) {
		requireUnavailable(t, repo.Revoke(t.Context(), "t-root"))
	})

	t.Run("revoke family", func(t *testing.T) {
		requireUnavailable(t, repo.RevokeFamily(t.Context(), uuid.New()))
	})

	t.Run("is active", func(t *testing.T) {
		_, err := repo.IsActive(t.Context(), "t-root")
		requireUnavailable(t, err)
	})

	t.Run("delete expired", func(t *testing.T) {
		_, err := repo.DeleteExpired(t.Context(), time.Now())
		requireUnavailable(t, err)
	})
}

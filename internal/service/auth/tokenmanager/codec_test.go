package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

func claimsFor(userID uuid.UUID, expiresAt time.Time) AccessTokenClaims {
	return AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   userID,
		Provider: models.ProviderLocal,
	}
}

func Test_NewCodec(t *testing.T) {
	t.Parallel()

	t.Run("no keys", func(t *testing.T) {
		_, err := NewCodec(nil, "HS256")
		require.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewCodec([]string{"valid", ""}, "HS256")
		require.Error(t, err)
	})

	t.Run("unknown signing method", func(t *testing.T) {
		_, err := NewCodec([]string{"secret"}, "HS9000")
		require.Error(t, err)
	})
}

func Test_Codec(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("encode and decode", func(t *testing.T) {
		codec, err := NewCodec([]string{"secret"}, "HS256")
		require.NoError(t, err)

		access, err := codec.Encode(claimsFor(userID, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		claims, err := codec.Decode(access)

		require.NoError(t, err)
		require.Equal(t, userID, claims.UserID)
		require.Equal(t, models.ProviderLocal, claims.Provider)
	})

	t.Run("expired token", func(t *testing.T) {
		codec, err := NewCodec([]string{"secret"}, "HS256")
		require.NoError(t, err)

		access, err := codec.Encode(claimsFor(userID, time.Now().Add(-time.Minute)))
		require.NoError(t, err)

		_, err = codec.Decode(access)

		require.ErrorIs(t, err, apperrors.ErrTokenExpired)
	})

	t.Run("malformed token", func(t *testing.T) {
		codec, err := NewCodec([]string{"secret"}, "HS256")
		require.NoError(t, err)

		_, err = codec.Decode("clearly-not-a-jwt")

		require.ErrorIs(t, err, apperrors.ErrTokenMalformed)
	})

	t.Run("token signed with unknown key", func(t *testing.T) {
		signer, err := NewCodec([]string{"other-secret"}, "HS256")
		require.NoError(t, err)
		codec, err := NewCodec([]string{"secret"}, "HS256")
		require.NoError(t, err)

		access, err := signer.Encode(claimsFor(userID, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		_, err = codec.Decode(access)

		require.ErrorIs(t, err, apperrors.ErrTokenSignatureInvalid)
	})

	t.Run("token signed with older key still decodes", func(t *testing.T) {
		oldCodec, err := NewCodec([]string{"old-secret"}, "HS256")
		require.NoError(t, err)

		// Key ring rotated: a fresh key signs, the old one still verifies
		ring, err := NewCodec([]string{"new-secret", "old-secret"}, "HS256")
		require.NoError(t, err)

		access, err := oldCodec.Encode(claimsFor(userID, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		claims, err := ring.Decode(access)

		require.NoError(t, err)
		require.Equal(t, userID, claims.UserID)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		codec, err := NewCodec([]string{"secret"}, "HS256")
		require.NoError(t, err)

		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claimsFor(userID, time.Now().Add(time.Hour)))
		access, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Decode(access)

		require.Error(t, err, "token with 'none' algorithm must never validate")
	})
}

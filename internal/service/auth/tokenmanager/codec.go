package tokenmanager

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID       `json:"uid"`
	Provider models.Provider `json:"prv"`
}

// Codec signs and verifies access token payloads.
// It holds a ring of symmetric keys: the newest one signs, all of them may
// verify. Appending a fresh key rotates signing without breaking tokens
// issued under the previous keys.
type Codec struct {
	// Keys ordered newest first
	keys [][]byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod
}

func NewCodec(keys []string, alg string) (*Codec, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one secret key required")
	}
	for _, key := range keys {
		if key == "" {
			return nil, errors.New("secret key must not be empty")
		}
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("unknown signing method: %q", alg)
	}

	byteKeys := make([][]byte, 0, len(keys))
	for _, key := range keys {
		byteKeys = append(byteKeys, []byte(key))
	}

	return &Codec{keys: byteKeys, alg: method}, nil
}

// Encode signs claims with the newest key
func (c *Codec) Encode(claims AccessTokenClaims) (string, error) {
	token := jwt.NewWithClaims(c.alg, claims)

	signed, err := token.SignedString(c.keys[0])
	if err != nil {
		return "", fmt.Errorf("error while signing access token. Err: %w", err)
	}
	return signed, nil
}

// Decode parses and verifies the token trying every key newest first
func (c *Codec) Decode(access string) (*AccessTokenClaims, error) {
	var lastErr error

	for _, key := range c.keys {
		claims := &AccessTokenClaims{}

		_, err := jwt.ParseWithClaims(
			access,
			claims,
			func(t *jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{c.alg.Alg()}),
		)

		switch {
		case err == nil:
			return claims, nil
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w. Err: %v", apperrors.ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			// Signature checked out, the token just outlived its TTL
			return nil, fmt.Errorf("%w. Err: %v", apperrors.ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// May be signed with an older key, keep trying
			lastErr = err
		default:
			return nil, fmt.Errorf("%w. Err: %v", apperrors.ErrTokenMalformed, err)
		}
	}

	return nil, fmt.Errorf("%w. Err: %v", apperrors.ErrTokenSignatureInvalid, lastErr)
}

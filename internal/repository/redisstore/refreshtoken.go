// Package redisstore keeps refresh tokens in redis.
// Every token is a hash under "refresh:{token}" with a key TTL equal to the
// token lifetime, so expired records vanish on their own and behave as not
// found. Chain membership lives in a "refresh_family:{family}" set.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

const (
	tokenPrefix  = "refresh:"
	familyPrefix = "refresh_family:"

	// Family sets outlive their newest member so revocation still reaches
	// records kept around for audit reads
	familyTTLSlack = 30 * 24 * time.Hour
)

type RefreshTokenRepo struct {
	client *redis.Client
}

func NewRefreshTokenRepo(client *redis.Client) *RefreshTokenRepo {
	return &RefreshTokenRepo{client: client}
}

// rotateScript flips the parent 'active' -> 'rotated', writes the
// successor hash and registers it in the family set in one atomic step,
// so RevokeFamily can always reach the successor. Replies: "ok",
// "not_found" or the parent status that lost the race
// ("rotated", "revoked").
var rotateScript = redis.NewScript(`
local old = redis.call('HMGET', KEYS[1], 'status', 'expires_at_ms', 'user_id', 'provider', 'family_id', 'generation')
if not old[1] then
	return 'not_found'
end
if tonumber(old[2]) <= tonumber(ARGV[2]) then
	return 'not_found'
end
if old[1] ~= 'active' then
	return old[1]
end
redis.call('HSET', KEYS[1], 'status', 'rotated', 'successor', ARGV[1])
redis.call('HSET', KEYS[2],
	'user_id', old[3],
	'provider', old[4],
	'family_id', old[5],
	'generation', old[6] + 1,
	'status', 'active',
	'created_at_ms', ARGV[2],
	'expires_at_ms', ARGV[3],
	'successor', '')
redis.call('PEXPIREAT', KEYS[2], ARGV[3])
local family = ARGV[4] .. old[5]
redis.call('SADD', family, ARGV[1])
redis.call('PEXPIREAT', family, ARGV[5])
return 'ok'
`)

// revokeScript marks the token revoked only while its key still exists.
// A plain HSET after an existence check could race key expiry and leave
// behind a bare hash with no TTL.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	key := tokenPrefix + token.Token

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", token.UserID.String(),
			"provider", string(token.Provider),
			"family_id", token.FamilyID.String(),
			"generation", token.Generation,
			"status", string(token.Status),
			"created_at_ms", token.CreatedAt.UnixMilli(),
			"expires_at_ms", token.ExpiresAt.UnixMilli(),
			"successor", "",
		)
		pipe.PExpireAt(ctx, key, token.ExpiresAt)
		pipe.SAdd(ctx, familyPrefix+token.FamilyID.String(), token.Token)
		pipe.PExpireAt(ctx, familyPrefix+token.FamilyID.String(), token.ExpiresAt.Add(familyTTLSlack))
		return nil
	})
	if err != nil {
		return token, storeErr(err)
	}

	return token, nil
}

func (r *RefreshTokenRepo) Get(ctx context.Context, tokenID string) (models.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, tokenPrefix+tokenID).Result()
	if err != nil {
		return models.RefreshToken{}, storeErr(err)
	}
	if len(fields) == 0 {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	return fieldsToToken(tokenID, fields)
}

func (r *RefreshTokenRepo) Rotate(ctx context.Context, tokenID string, successor models.RefreshToken) (models.RefreshToken, error) {
	keys := []string{tokenPrefix + tokenID, tokenPrefix + successor.Token}
	args := []any{
		successor.Token,
		successor.CreatedAt.UnixMilli(),
		successor.ExpiresAt.UnixMilli(),
		familyPrefix,
		successor.ExpiresAt.Add(familyTTLSlack).UnixMilli(),
	}

	reply, err := rotateScript.Run(ctx, r.client, keys, args...).Text()
	if err != nil {
		return successor, storeErr(err)
	}

	switch reply {
	case "ok":
		return r.Get(ctx, successor.Token)

	case "not_found":
		return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)

	default:
		// Replay detected: the whole chain dies with the replayed token
		familyID, err := r.client.HGet(ctx, tokenPrefix+tokenID, "family_id").Result()
		if err != nil {
			return successor, storeErr(err)
		}
		family, err := uuid.Parse(familyID)
		if err != nil {
			return successor, fmt.Errorf("store error: bad family id %q: %w", familyID, err)
		}
		if err := r.RevokeFamily(ctx, family); err != nil {
			return successor, err
		}

		if reply == string(models.RefreshTokenRevoked) {
			return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
		}
		return successor, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenReused)
	}
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID string) error {
	keys := []string{tokenPrefix + tokenID}

	err := revokeScript.Run(ctx, r.client, keys, string(models.RefreshTokenRevoked)).Err()
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	tokens, err := r.client.SMembers(ctx, familyPrefix+familyID.String()).Result()
	if err != nil {
		return storeErr(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tokenID := range tokens {
			pipe.HSet(ctx, tokenPrefix+tokenID, "status", string(models.RefreshTokenRevoked))
		}
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *RefreshTokenRepo) IsActive(ctx context.Context, tokenID string) (bool, error) {
	values, err := r.client.HMGet(ctx, tokenPrefix+tokenID, "status", "expires_at_ms").Result()
	if err != nil {
		return false, storeErr(err)
	}

	status, ok := values[0].(string)
	if !ok {
		return false, nil
	}
	expiresMs, ok := values[1].(string)
	if !ok {
		return false, nil
	}

	ms, err := strconv.ParseInt(expiresMs, 10, 64)
	if err != nil {
		return false, fmt.Errorf("store error: bad expires_at_ms %q: %w", expiresMs, err)
	}

	return status == string(models.RefreshTokenActive) && time.UnixMilli(ms).After(time.Now()), nil
}

// DeleteExpired is a no-op: redis drops expired records itself via key TTL
func (r *RefreshTokenRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w. Err: %v", apperrors.ErrStoreUnavailable, err)
}

func fieldsToToken(tokenID string, fields map[string]string) (models.RefreshToken, error) {
	var t models.RefreshToken
	var err error

	t.Token = tokenID
	t.Provider = models.Provider(fields["provider"])
	t.Status = models.RefreshTokenStatus(fields["status"])

	if t.UserID, err = uuid.Parse(fields["user_id"]); err != nil {
		return t, fmt.Errorf("store error: bad user id: %w", err)
	}
	if t.FamilyID, err = uuid.Parse(fields["family_id"]); err != nil {
		return t, fmt.Errorf("store error: bad family id: %w", err)
	}
	if t.Generation, err = strconv.Atoi(fields["generation"]); err != nil {
		return t, fmt.Errorf("store error: bad generation: %w", err)
	}

	createdMs, err := strconv.ParseInt(fields["created_at_ms"], 10, 64)
	if err != nil {
		return t, fmt.Errorf("store error: bad created_at_ms: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at_ms"], 10, 64)
	if err != nil {
		return t, fmt.Errorf("store error: bad expires_at_ms: %w", err)
	}
	t.CreatedAt = time.UnixMilli(createdMs)
	t.ExpiresAt = time.UnixMilli(expiresMs)

	if successor := fields["successor"]; successor != "" {
		t.SuccessorToken = &successor
	}

	return t, nil
}

package db

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	credentialsPrefix       string = "credentials"
	credentialsExpiringKey  string = "credentialsExpiring"
	credentialsExpiryLeeway        = 5 * time.Minute
)

// GetCredentials returns the decrypted credential pair stored for the session key
func (r RedisAdapter) GetCredentials(ctx context.Context, sessionKey string) (models.CredentialPair, error) {
	raw, err := r.rdb.HGetAll(ctx, r.credentialsKey(sessionKey)).Result()
	if err != nil {
		return models.CredentialPair{}, err
	}
	record := models.CredentialRecord{}
	err = r.deserializeToStruct(raw, &record)
	if err != nil {
		if err == gwerrors.ErrMissingDBResource {
			err = gwerrors.ErrMissingCredentials
		}
		return models.CredentialPair{}, err
	}
	record, err = record.Decrypt(r.encryptor)
	if err != nil {
		return models.CredentialPair{}, err
	}
	return record.Pair(), nil
}

// SetCredentials persists the pair and indexes the session key by the expiry of the access token
// so that proactive refreshes can find it.
func (r RedisAdapter) SetCredentials(ctx context.Context, sessionKey string, pair models.CredentialPair) error {
	record, err := models.NewCredentialRecord(sessionKey, pair, time.Now()).Encrypt(r.encryptor)
	if err != nil {
		return err
	}
	key := r.credentialsKey(sessionKey)
	err = r.rdb.HSet(ctx, key, r.serializeStruct(record)...).Err()
	if err != nil {
		return err
	}
	// the record lives as long as the refresh token can still be used
	if refreshExpiry, ok := models.TokenExpiry(pair.RefreshToken); ok {
		err = r.rdb.ExpireAt(ctx, key, refreshExpiry.Add(credentialsExpiryLeeway)).Err()
	} else {
		err = r.rdb.Persist(ctx, key).Err()
	}
	if err != nil {
		return err
	}
	if record.AccessTokenExpiresAt.IsZero() {
		return r.rdb.ZRem(ctx, credentialsExpiringKey, sessionKey).Err()
	}
	return r.rdb.ZAdd(
		ctx,
		credentialsExpiringKey,
		redis.Z{Score: float64(record.AccessTokenExpiresAt.Unix()), Member: sessionKey},
	).Err()
}

func (r RedisAdapter) RemoveCredentials(ctx context.Context, sessionKey string) error {
	err := r.rdb.Del(ctx, r.credentialsKey(sessionKey)).Err()
	if err != nil {
		return err
	}
	return r.rdb.ZRem(ctx, credentialsExpiringKey, sessionKey).Err()
}

// GetExpiringSessionKeys lists the session keys whose access token expires before expiryEnd
func (r RedisAdapter) GetExpiringSessionKeys(ctx context.Context, expiryEnd time.Time) ([]string, error) {
	keys, err := r.rdb.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:     credentialsExpiringKey,
		Start:   "-inf",
		Stop:    strconv.FormatInt(expiryEnd.Unix(), 10),
		ByScore: true,
	}).Result()
	if err != nil {
		slog.Error("CREDENTIAL STORE", "message", "listing expiring credentials failed", "error", err)
		return []string{}, err
	}
	return keys, nil
}

func (RedisAdapter) credentialsKey(sessionKey string) string {
	return fmt.Sprintf("%s:%s", credentialsPrefix, sessionKey)
}

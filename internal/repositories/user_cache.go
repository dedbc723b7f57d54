package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"messenger-service/internal/models"
)

// CachedUserRepo serves GetUser from Redis before falling back to the wrapped
// repository. Cache failures degrade to the wrapped repository.
type CachedUserRepo struct {
	UserRepository
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedUserRepo wraps inner with a Redis read-through cache.
func NewCachedUserRepo(inner UserRepository, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedUserRepo {
	return &CachedUserRepo{
		UserRepository: inner,
		client:         client,
		ttl:            ttl,
		log:            log.With().Str("component", "user_cache").Logger(),
	}
}

func userCacheKey(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// GetUser returns the cached user or loads and caches it.
func (r *CachedUserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	key := userCacheKey(userID)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var user models.User
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return user, nil
		}
		r.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		r.log.Warn().Err(err).Str("key", key).Msg("user cache read failed")
	}

	user, err := r.UserRepository.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if payload, err := json.Marshal(user); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("user cache write failed")
		}
	}
	return user, nil
}

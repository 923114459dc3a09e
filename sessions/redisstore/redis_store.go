package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-recipe-auth/sessions"
)

const keyPrefix = "auth:session:"

var _ sessions.Store = (*Store)(nil)

// Connect builds a client from a redis:// URL or a plain host:port address and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "[Connect] redis.ParseURL")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[Connect] client.Ping")
	}
	return client, nil
}

// Store keeps sessions in Redis with a native TTL per key, so expiry needs no sweeping.
type Store struct {
	client redis.Cmdable
}

func New(client redis.Cmdable) *Store {
	return &Store{client: client}
}

// Key returns the Redis key for token. Raw tokens are never written to Redis.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (s *Store) Create(ctx context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" {
		return errors.New("[Store.Create] token and userID are required")
	}
	if ttl <= 0 {
		return errors.Errorf("[Store.Create] invalid ttl %s", ttl)
	}
	if err := s.client.Set(ctx, Key(token), userID, ttl).Err(); err != nil {
		return errors.Wrap(err, "[Store.Create] client.Set")
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", sessions.ErrNotFound
	}
	userID, err := s.client.Get(ctx, Key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", sessions.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[Store.Resolve] client.Get")
	}
	return userID, nil
}

func (s *Store) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, Key(token)).Err(); err != nil {
		return errors.Wrap(err, "[Store.Revoke] client.Del")
	}
	return nil
}

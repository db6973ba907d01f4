package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the redis-backed registry.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type redisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (Registry, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "medremind:"
	}
	return &redisRegistry{client: client, prefix: prefix}, nil
}

func (r *redisRegistry) key(userID string) string {
	return r.prefix + "token:" + userID
}

func (r *redisRegistry) Store(ctx context.Context, userID string, token DeviceToken) error {
	if err := token.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID), b, 0).Err()
}

func (r *redisRegistry) ActiveToken(ctx context.Context, userID string) (DeviceToken, error) {
	b, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DeviceToken{}, ErrNoToken
	}
	if err != nil {
		return DeviceToken{}, err
	}
	var t DeviceToken
	if err := json.Unmarshal(b, &t); err != nil {
		return DeviceToken{}, fmt.Errorf("decode token for %s: %w", userID, err)
	}
	return t, nil
}

func (r *redisRegistry) Deactivate(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

func (r *redisRegistry) Close() error { return r.client.Close() }

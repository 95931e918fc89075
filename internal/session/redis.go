package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/fiche/internal/form"
)

const keyPrefix = "fiche:session:"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis stores each session as one JSON value with a sliding TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, ttl: cfg.TTL}, nil
}

func (r *Redis) Load(ctx context.Context, id string) (*form.State, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	blob, err := r.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return form.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	return decode(blob)
}

func (r *Redis) Save(ctx context.Context, id string, st *form.State) error {
	if err := checkID(id); err != nil {
		return err
	}
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+id, blob, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

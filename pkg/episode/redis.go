package episode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultRedisKey is the list key episodes are pushed to.
const DefaultRedisKey = "drowse:episodes"

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Capacity int
}

// Redis stores episodes as JSON in a capped Redis list, newest at the head.
type Redis struct {
	client   *redis.Client
	key      string
	capacity int
	logger   *slog.Logger
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	logger.Info("episode store connected", "component", "episode.redis", "addr", cfg.Addr, "key", cfg.Key)

	return &Redis{
		client:   client,
		key:      cfg.Key,
		capacity: cfg.Capacity,
		logger:   logger.With("component", "episode.redis"),
	}, nil
}

// Save pushes e to the head of the list and trims the tail.
func (r *Redis) Save(ctx context.Context, e Episode) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal episode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save episode %s: %w", e.ID, err)
	}

	r.logger.Debug("episode saved", "id", e.ID, "duration", e.Duration)
	return nil
}

// List returns up to limit episodes, newest first.
func (r *Redis) List(ctx context.Context, limit int) ([]Episode, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}

	out := make([]Episode, 0, len(raw))
	for _, item := range raw {
		var e Episode
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.logger.Warn("skipping corrupt episode", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Get scans the list for id.
func (r *Redis) Get(ctx context.Context, id string) (Episode, error) {
	all, err := r.List(ctx, 0)
	if err != nil {
		return Episode{}, err
	}
	for _, e := range all {
		if e.ID == id {
			return e, nil
		}
	}
	return Episode{}, ErrNotFound
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)

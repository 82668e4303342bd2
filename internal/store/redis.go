package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aviaryhq/aviary-go/internal/config"
	"github.com/aviaryhq/aviary-go/internal/task"
)

const keyPrefix = "aviary:task:"

// RedisStore persists tasks in Redis so simulator state survives restarts.
// Task data lives under aviary:task:<id>; per-status sets index tasks for
// the runner's queued scan.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration // TTL applied to terminal tasks, 0 = keep forever
}

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(cfg *config.RedisConfig, retentionDays int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	var retention time.Duration
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}

	return &RedisStore{client: client, retention: retention}, nil
}

// Client exposes the underlying Redis client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Create(ctx context.Context, t *task.Task) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store task: %w", err)
	}
	if !ok {
		return task.ErrTaskAlreadyExists
	}

	if err := s.client.SAdd(ctx, s.statusKey(t.Status), t.ID).Err(); err != nil {
		s.client.Del(ctx, s.taskKey(t.ID)) // Cleanup on failure
		return fmt.Errorf("failed to index task: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task.FromJSON(data)
}

func (s *RedisStore) Update(ctx context.Context, t *task.Task) error {
	prev, err := s.Get(ctx, t.ID)
	if err != nil {
		return err
	}

	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	var expiry time.Duration
	if t.Status.IsTerminal() {
		expiry = s.retention
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.taskKey(t.ID), data, expiry)
	if prev.Status != t.Status {
		pipe.SMove(ctx, s.statusKey(prev.Status), s.statusKey(t.Status), t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

func (s *RedisStore) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var out []*task.Task
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, task.ErrTaskNotFound) {
			// Expired task data, drop the stale index entry
			s.client.SRem(ctx, s.statusKey(status), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.taskKey(id))
	pipe.SRem(ctx, s.statusKey(t.Status), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) taskKey(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) statusKey(status task.Status) string {
	return "aviary:status:" + status.String()
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"video-essay-pipeline/types"
)

var ErrNotFound = errors.New("job not found")

// Store persists job state. Implementations return copies, so callers may
// mutate what they get back.
type Store interface {
	Put(ctx context.Context, st *types.RunState) error
	Get(ctx context.Context, id string) (*types.RunState, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]types.RunState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]types.RunState)}
}

func (m *MemoryStore) Put(_ context.Context, st *types.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.ID] = *st
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*types.RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

// RedisStore keeps job state as JSON strings so the API process and asynq
// workers share one view.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings addr.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, prefix: "video-essay:job:", ttl: ttl}, nil
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Put(ctx context.Context, st *types.RunState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(st.ID), data, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*types.RunState, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st types.RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &st, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

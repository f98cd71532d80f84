// Package secondary holds the student's client-owned working state. The
// server keeps only an autosave scratch copy of it: the data has no trust
// requirement and may be lost or reset without security impact, so the
// store is a plain key-value contract keyed by case id.
package secondary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// Store is the injected key-value contract for secondary context.
// Get returns (nil, nil) when no scratch copy exists.
type Store interface {
	Get(ctx context.Context, caseID uuid.UUID) (*model.SecondaryContext, error)
	Set(ctx context.Context, caseID uuid.UUID, sc *model.SecondaryContext) error
	Remove(ctx context.Context, caseID uuid.UUID) error
}

// RedisStore keeps autosave scratch copies in Redis with a generous TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed secondary context store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, caseID uuid.UUID) (*model.SecondaryContext, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SecondaryContextKey(caseID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get secondary context: %w", err)
	}

	sc := &model.SecondaryContext{}
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("unmarshal secondary context: %w", err)
	}
	return sc, nil
}

func (s *RedisStore) Set(ctx context.Context, caseID uuid.UUID, sc *model.SecondaryContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal secondary context: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SecondaryContextKey(caseID.String()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set secondary context: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, caseID uuid.UUID) error {
	if err := s.rdb.Del(ctx, config.CacheKey.SecondaryContextKey(caseID.String())).Err(); err != nil {
		return fmt.Errorf("remove secondary context: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used in tests and as a stand-in where
// Redis is absent.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*model.SecondaryContext
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*model.SecondaryContext)}
}

func (s *MemoryStore) Get(_ context.Context, caseID uuid.UUID) (*model.SecondaryContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.entries[caseID]
	if !ok {
		return nil, nil
	}
	cp := *sc
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, caseID uuid.UUID, sc *model.SecondaryContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sc
	s.entries[caseID] = &cp
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, caseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, caseID)
	return nil
}

// Package session keeps the signed-in user's record between requests, so a
// saved edit is reflected in the next read without a backend round trip.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"workload/internal/models"

	"github.com/redis/go-redis/v9"
)

// Store holds one user record per session id.
type Store interface {
	Get(ctx context.Context, sid string) (models.Record, error)
	Merge(ctx context.Context, sid string, rec models.Record) (models.Record, error)
	Clear(ctx context.Context, sid string) error
}

// RedisStore keeps records as JSON strings with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(sid string) string {
	return "workload:session:" + sid
}

// Get returns the record, or an empty record if none is stored.
func (s *RedisStore) Get(ctx context.Context, sid string) (models.Record, error) {
	val, err := s.rdb.Get(ctx, key(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	rec := models.Record{}
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// A corrupt entry is treated as empty, the same as a fresh session.
		return models.Record{}, nil
	}
	return rec, nil
}

// Merge overlays rec on the stored record and stores the result.
func (s *RedisStore) Merge(ctx context.Context, sid string, rec models.Record) (models.Record, error) {
	existing, err := s.Get(ctx, sid)
	if err != nil {
		return nil, err
	}
	merged := existing.Merge(rec)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, key(sid), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("set session: %w", err)
	}
	return merged, nil
}

func (s *RedisStore) Clear(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, key(sid)).Err()
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Record)}
}

func (s *MemoryStore) Get(_ context.Context, sid string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sid]
	if !ok {
		return models.Record{}, nil
	}
	return models.Record{}.Merge(rec), nil
}

func (s *MemoryStore) Merge(_ context.Context, sid string, rec models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.records[sid].Merge(rec)
	s.records[sid] = merged
	return models.Record{}.Merge(merged), nil
}

func (s *MemoryStore) Clear(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sid)
	return nil
}

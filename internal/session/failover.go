package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"workload/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore serves from primary and switches to fallback while primary
// is failing. Once down, primary is retried at most every recoveryInterval.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, logger: logger}
}

// usePrimary reports whether the next call should go to primary.
func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < recoveryInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) markDown(err error, op string) {
	if !s.isDown.Swap(true) {
		s.logger.Warn().Err(err).Str("op", op).Msg("primary session store failed, switching to fallback")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) markUp() {
	if s.isDown.Swap(false) {
		s.logger.Info().Msg("primary session store recovered")
	}
}

func (s *FailoverStore) Get(ctx context.Context, sid string) (models.Record, error) {
	if s.usePrimary() {
		rec, err := s.primary.Get(ctx, sid)
		if err == nil {
			s.markUp()
			return rec, nil
		}
		s.markDown(err, "get")
	}
	return s.fallback.Get(ctx, sid)
}

func (s *FailoverStore) Merge(ctx context.Context, sid string, rec models.Record) (models.Record, error) {
	if s.usePrimary() {
		merged, err := s.primary.Merge(ctx, sid, rec)
		if err == nil {
			s.markUp()
			return merged, nil
		}
		s.markDown(err, "merge")
	}
	return s.fallback.Merge(ctx, sid, rec)
}

// Clear removes the record from both stores.
func (s *FailoverStore) Clear(ctx context.Context, sid string) error {
	fbErr := s.fallback.Clear(ctx, sid)
	if s.usePrimary() {
		if err := s.primary.Clear(ctx, sid); err != nil {
			s.markDown(err, "clear")
			return fbErr
		}
		s.markUp()
		return nil
	}
	return fbErr
}

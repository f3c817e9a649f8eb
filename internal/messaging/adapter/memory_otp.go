package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

type memoryOTPEntry struct {
	rec       domain.OTPRecord
	expiresAt time.Time
}

// MemoryOTPStore keeps codes in process memory. It is only correct for a
// single instance and backs local development and tests.
type MemoryOTPStore struct {
	mu      sync.Mutex
	clock   domain.Clock
	entries map[string]memoryOTPEntry
}

var _ app.OTPStore = (*MemoryOTPStore)(nil)

// NewMemoryOTPStore creates an empty store whose expiry follows clock.
func NewMemoryOTPStore(clock domain.Clock) *MemoryOTPStore {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &MemoryOTPStore{clock: clock, entries: make(map[string]memoryOTPEntry)}
}

func (s *MemoryOTPStore) Put(_ context.Context, key string, rec domain.OTPRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryOTPEntry{rec: rec, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, key string) (domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return domain.OTPRecord{}, domain.ErrNotFound
	}
	return e.rec, nil
}

func (s *MemoryOTPStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok, nil
}

func (s *MemoryOTPStore) Forget(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	delete(s.entries, key)
	return ok, nil
}

func (s *MemoryOTPStore) Consume(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.rec.Code != code {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryOTPStore) IncrementAttempts(_ context.Context, key string, maxAttempts int, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return 0, domain.ErrNotFound
	}
	e.rec.Attempts++
	if e.rec.Attempts >= maxAttempts {
		delete(s.entries, key)
		return e.rec.Attempts, nil
	}
	e.expiresAt = s.clock.Now().Add(ttl)
	s.entries[key] = e
	return e.rec.Attempts, nil
}

// live returns the entry for key, evicting it when expired. Caller holds mu.
func (s *MemoryOTPStore) live(key string) (memoryOTPEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryOTPEntry{}, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryOTPEntry{}, false
	}
	return e, true
}

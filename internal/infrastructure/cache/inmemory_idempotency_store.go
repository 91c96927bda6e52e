package cache

import (
	"context"
	"sync"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
)

const defaultSweepEvery = 5 * time.Minute

// InMemoryIdempotencyStore keeps keys in process. Replicas do not share it,
// so it serves single-instance deployments and tests.
type InMemoryIdempotencyStore struct {
	mu      sync.RWMutex
	expires map[string]time.Time
	clock   shared.Clock
	every   time.Duration

	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// InMemoryOption configures an InMemoryIdempotencyStore
type InMemoryOption func(*InMemoryIdempotencyStore)

// WithClock sets the time source used for expiry
func WithClock(clock shared.Clock) InMemoryOption {
	return func(s *InMemoryIdempotencyStore) { s.clock = clock }
}

// WithSweepInterval sets how often expired keys are dropped. Zero disables
// the background sweep; expired keys are then only replaced on Claim.
func WithSweepInterval(d time.Duration) InMemoryOption {
	return func(s *InMemoryIdempotencyStore) { s.every = d }
}

func NewInMemoryIdempotencyStore(opts ...InMemoryOption) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		clock:   shared.SystemClock{},
		every:   defaultSweepEvery,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.every > 0 {
		s.stopped.Add(1)
		go s.sweepLoop()
	}
	return s
}

func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.expires[key]) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) Seen(_ context.Context, key string) (bool, error) {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Before(s.expires[key]), nil
}

func (s *InMemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweep. Calling it again is a no-op.
func (s *InMemoryIdempotencyStore) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.stopped.Wait()
	})
	return nil
}

// Len counts held keys, expired ones included until the next sweep
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expires)
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.stopped.Done()
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops expired keys and returns how many went
func (s *InMemoryIdempotencyStore) sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, at := range s.expires {
		if !now.Before(at) {
			delete(s.expires, key)
			n++
		}
	}
	return n
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid overdue sweep config")
	// ErrSweepSkipped means another replica holds this window's lease
	ErrSweepSkipped = errors.New("sweep skipped: lease held elsewhere")
)

// MilestoneSweeper marks milestones past their due date as overdue
type MilestoneSweeper interface {
	SweepOverdueMilestones(ctx context.Context, batchSize int) (int, error)
}

// Lease lets a single replica claim one sweep window. Claim returns
// true only for the first caller of a key within ttl.
type Lease interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// OverdueSweepConfig holds configuration for the overdue milestone sweep
type OverdueSweepConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	// Timeout bounds a single sweep run
	Timeout time.Duration
}

// DefaultOverdueSweepConfig returns default sweep configuration
func DefaultOverdueSweepConfig() OverdueSweepConfig {
	return OverdueSweepConfig{
		Enabled:   true,
		Interval:  15 * time.Minute,
		BatchSize: 500,
		Timeout:   5 * time.Minute,
	}
}

// Validate checks the configuration
func (c OverdueSweepConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// OverdueSweeper periodically runs the overdue milestone sweep
type OverdueSweeper struct {
	config  OverdueSweepConfig
	sweeper MilestoneSweeper
	lease   Lease
	clock   shared.Clock
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
	lastCount int
}

// OverdueSweeperOption configures an OverdueSweeper
type OverdueSweeperOption func(*OverdueSweeper)

// WithLease coordinates sweeps across replicas
func WithLease(lease Lease) OverdueSweeperOption {
	return func(s *OverdueSweeper) {
		s.lease = lease
	}
}

// WithClock overrides the clock used to derive lease windows
func WithClock(clock shared.Clock) OverdueSweeperOption {
	return func(s *OverdueSweeper) {
		s.clock = clock
	}
}

// NewOverdueSweeper creates a new sweeper
func NewOverdueSweeper(config OverdueSweepConfig, sweeper MilestoneSweeper, logger *zap.Logger, opts ...OverdueSweeperOption) (*OverdueSweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OverdueSweeper{
		config:  config,
		sweeper: sweeper,
		clock:   shared.SystemClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start starts the sweep loop. It is a no-op when disabled or already running.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Overdue milestone sweep disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Overdue milestone sweep started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight sweep
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Overdue milestone sweep stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue milestone sweep stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (s *OverdueSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRun returns when the last sweep finished and how many milestones it marked
func (s *OverdueSweeper) LastRun() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastCount
}

func (s *OverdueSweeper) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepSkipped) && ctx.Err() == nil {
				s.logger.Error("Overdue milestone sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep, claiming the current window's lease first
// when one is configured.
func (s *OverdueSweeper) RunOnce(ctx context.Context) (int, error) {
	if s.lease != nil {
		window := s.clock.Now().Truncate(s.config.Interval)
		key := "sweep:overdue-milestones:" + window.UTC().Format(time.RFC3339)
		claimed, err := s.lease.Claim(ctx, key, s.config.Interval)
		if err != nil {
			return 0, fmt.Errorf("claim sweep lease: %w", err)
		}
		if !claimed {
			s.logger.Debug("Overdue milestone sweep lease held elsewhere", zap.String("key", key))
			return 0, ErrSweepSkipped
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	marked, err := s.sweeper.SweepOverdueMilestones(runCtx, s.config.BatchSize)

	s.mu.Lock()
	s.lastRun = s.clock.Now()
	s.lastCount = marked
	s.mu.Unlock()

	if err != nil {
		return marked, err
	}
	s.logger.Debug("Overdue milestone sweep finished", zap.Int("marked", marked))
	return marked, nil
}

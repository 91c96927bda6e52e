package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOutboxRepo is an in-memory outbox repository ordered by creation time
type fakeOutboxRepo struct {
	entries   map[uuid.UUID]*shared.OutboxEntry
	updateErr error
	findErr   error
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *fakeOutboxRepo) add(entries ...*shared.OutboxEntry) {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
}

func (r *fakeOutboxRepo) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.add(entries...)
	return nil
}

func (r *fakeOutboxRepo) FindDue(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	if r.findErr != nil {
		return nil, 0, r.findErr
	}
	var dead []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].CreatedAt.Before(dead[j].CreatedAt) })

	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(dead) {
		end = len(dead)
	}
	return dead[start:end], total, nil
}

func (r *fakeOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound.WithMessage("Outbox entry not found")
}

func (r *fakeOutboxRepo) Claim(context.Context, []uuid.UUID, time.Time) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) ReleaseStale(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *fakeOutboxRepo) PurgeSent(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

var serviceNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func deadEntry(createdAt time.Time) *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "escrow.payout.failed",
		AggregateID:   uuid.New(),
		AggregateType: "EscrowAccount",
		Status:        shared.OutboxStatusDead,
		RetryCount:    5,
		MaxRetries:    5,
		LastError:     "handler timeout",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func newTestOutboxService() (*OutboxService, *fakeOutboxRepo) {
	repo := newFakeOutboxRepo()
	return NewOutboxService(repo, shared.NewManualClock(serviceNow)), repo
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	service, repo := newTestOutboxService()
	for i := 0; i < 5; i++ {
		repo.add(deadEntry(serviceNow.Add(-time.Duration(i) * time.Hour)))
	}
	repo.add(&shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending})

	t.Run("first page", func(t *testing.T) {
		result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.Total)
		assert.Len(t, result.Entries, 2)
		for _, entry := range result.Entries {
			assert.Equal(t, "DEAD", entry.Status)
			assert.Equal(t, "handler timeout", entry.LastError)
		}
	})

	t.Run("defaults and caps", func(t *testing.T) {
		result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, defaultPageSize, result.PageSize)

		result, err = service.GetDeadLetterEntries(context.Background(), OutboxFilter{PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, maxPageSize, result.PageSize)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo.findErr = errors.New("connection refused")
		defer func() { repo.findErr = nil }()

		_, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{})
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestOutboxService_GetEntry(t *testing.T) {
	service, repo := newTestOutboxService()
	entry := deadEntry(serviceNow)
	repo.add(entry)

	got, err := service.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.EventID, got.EventID)
	assert.Equal(t, "EscrowAccount", got.AggregateType)

	_, err = service.GetEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	service, repo := newTestOutboxService()
	entry := deadEntry(serviceNow.Add(-time.Hour))
	repo.add(entry)

	result, err := service.RetryDeadEntry(context.Background(), entry.ID)

	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
	assert.Equal(t, serviceNow, result.UpdatedAt)
	assert.Equal(t, shared.OutboxStatusPending, repo.entries[entry.ID].Status)
}

func TestOutboxService_RetryDeadEntry_NotFound(t *testing.T) {
	service, _ := newTestOutboxService()

	_, err := service.RetryDeadEntry(context.Background(), uuid.New())

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryDeadEntry_NotDead(t *testing.T) {
	service, repo := newTestOutboxService()
	entry := &shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending}
	repo.add(entry)

	_, err := service.RetryDeadEntry(context.Background(), entry.ID)

	assert.ErrorIs(t, err, ErrEntryNotDead)
}

func TestOutboxService_RetryDeadEntry_UpdateFails(t *testing.T) {
	service, repo := newTestOutboxService()
	entry := deadEntry(serviceNow)
	repo.add(entry)
	repo.updateErr = errors.New("deadlock detected")

	_, err := service.RetryDeadEntry(context.Background(), entry.ID)

	assert.ErrorContains(t, err, "deadlock detected")
}

func TestOutboxService_GetStats(t *testing.T) {
	service, repo := newTestOutboxService()
	statuses := []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	}
	for _, status := range statuses {
		repo.add(&shared.OutboxEntry{ID: uuid.New(), Status: status})
	}

	stats, err := service.GetStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(8), stats.Total)
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	t.Run("resets every dead entry across pages", func(t *testing.T) {
		service, repo := newTestOutboxService()
		for i := 0; i < maxPageSize+30; i++ {
			repo.add(deadEntry(serviceNow.Add(-time.Duration(i) * time.Minute)))
		}
		pending := &shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending}
		repo.add(pending)

		count, err := service.RetryAllDeadEntries(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(maxPageSize+30), count)
		for _, entry := range repo.entries {
			assert.Equal(t, shared.OutboxStatusPending, entry.Status)
			assert.Equal(t, 0, entry.RetryCount)
		}
	})

	t.Run("stops when updates keep failing", func(t *testing.T) {
		service, repo := newTestOutboxService()
		repo.add(deadEntry(serviceNow))
		repo.updateErr = errors.New("read-only transaction")

		count, err := service.RetryAllDeadEntries(context.Background())

		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("cancelled context", func(t *testing.T) {
		service, repo := newTestOutboxService()
		repo.add(deadEntry(serviceNow))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		count, err := service.RetryAllDeadEntries(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, count)
	})
}

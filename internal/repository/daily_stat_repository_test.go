package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r14dd/matchsentinel/internal/model"
)

func TestDailyStatIncrement(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewDailyStatRepository(db, log)
	ctx := context.Background()

	// First increment creates the row lazily.
	require.NoError(t, repo.Increment(ctx, "2025-03-10", CounterTransactions))
	stat, err := repo.GetByDate(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.TotalTransactions)
	assert.Equal(t, int64(0), stat.FlaggedTransactions)

	// Subsequent increments bump in place, per counter.
	require.NoError(t, repo.Increment(ctx, "2025-03-10", CounterTransactions))
	require.NoError(t, repo.Increment(ctx, "2025-03-10", CounterFlagged))
	require.NoError(t, repo.Increment(ctx, "2025-03-10", CounterCases))
	require.NoError(t, repo.Increment(ctx, "2025-03-10", CounterNotifications))

	stat, err = repo.GetByDate(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.TotalTransactions)
	assert.Equal(t, int64(1), stat.FlaggedTransactions)
	assert.Equal(t, int64(1), stat.CasesCreated)
	assert.Equal(t, int64(1), stat.NotificationsSent)

	// A different date gets its own row.
	require.NoError(t, repo.Increment(ctx, "2025-03-11", CounterCases))
	stat, err = repo.GetByDate(ctx, "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.CasesCreated)
	assert.Equal(t, int64(0), stat.TotalTransactions)
}

func TestDailyStatIncrementConcurrent(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewDailyStatRepository(db, log)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Increment(ctx, "2025-03-12", CounterNotifications))
		}()
	}
	wg.Wait()

	stat, err := repo.GetByDate(ctx, "2025-03-12")
	require.NoError(t, err)
	assert.Equal(t, int64(n), stat.NotificationsSent, "no increment may be lost")
}

func TestDailyStatCreateConflict(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewDailyStatRepository(db, log)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := repo.Create(ctx, &model.DailyStat{
		ID:                uuid.New(),
		StatDate:          "2025-04-01",
		TotalTransactions: 10,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, &model.DailyStat{
		ID:        uuid.New(),
		StatDate:  "2025-04-01",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, created)

	stat, err := repo.GetByDate(ctx, "2025-04-01")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stat.TotalTransactions)
}

func TestDailyStatRange(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewDailyStatRepository(db, log)
	ctx := context.Background()

	for _, d := range []string{"2025-05-01", "2025-05-02", "2025-05-09"} {
		require.NoError(t, repo.Increment(ctx, d, CounterCases))
	}

	stats, err := repo.Range(ctx, "2025-05-01", "2025-05-07")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "2025-05-01", stats[0].StatDate)
	assert.Equal(t, "2025-05-02", stats[1].StatDate)
}

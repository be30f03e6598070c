package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessedEventMark(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewProcessedEventRepository(db, log)
	ctx := context.Background()

	inserted, err := repo.Mark(ctx, "txn:abc")
	require.NoError(t, err)
	assert.True(t, inserted)

	// Redelivery of the same logical event is a guaranteed no-op.
	inserted, err = repo.Mark(ctx, "txn:abc")
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = repo.Mark(ctx, "txn:def")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestProcessedEventMarkConcurrent(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewProcessedEventRepository(db, log)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.Mark(ctx, "case:contested")
			assert.NoError(t, err)
			results <- inserted
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for inserted := range results {
		if inserted {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one competing consumer may claim a key")
}

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/store"
)

var base = time.Date(2024, 1, 11, 16, 40, 0, 0, time.UTC)

func newRecord(i int) model.Record {
	return model.Record{
		ID:         fmt.Sprintf("rec-%d", i),
		Raw:        fmt.Sprintf("svc | line %d", i),
		Service:    "svc",
		Message:    fmt.Sprintf("line %d", i),
		ReceivedAt: base.Add(time.Duration(i) * time.Second),
	}
}

func ids(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRingStore_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	ring := store.NewRingStore(3, 0)

	for i := 0; i < 3; i++ {
		evicted, err := ring.Append(ctx, newRecord(i))
		require.NoError(t, err)
		assert.Nil(t, evicted)
	}

	evicted, err := ring.Append(ctx, newRecord(3))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "rec-0", evicted.ID)
	assert.Equal(t, 3, ring.Len())

	snap, err := ring.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1", "rec-2", "rec-3"}, ids(snap))
}

func TestRingStore_SnapshotOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		capacity int
		appends  int
		limit    int
		expected []string
	}{
		{name: "Empty", capacity: 4, appends: 0, limit: 10, expected: []string{}},
		{name: "Partial fill", capacity: 4, appends: 2, limit: 10, expected: []string{"rec-0", "rec-1"}},
		{name: "Limit below count", capacity: 4, appends: 4, limit: 2, expected: []string{"rec-2", "rec-3"}},
		{name: "Wrapped", capacity: 4, appends: 7, limit: 10, expected: []string{"rec-3", "rec-4", "rec-5", "rec-6"}},
		{name: "Wrapped with limit", capacity: 4, appends: 9, limit: 3, expected: []string{"rec-6", "rec-7", "rec-8"}},
		{name: "Zero limit", capacity: 4, appends: 3, limit: 0, expected: []string{}},
		{name: "Negative limit returns everything", capacity: 2, appends: 3, limit: -1, expected: []string{"rec-1", "rec-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := store.NewRingStore(tt.capacity, 0)
			for i := 0; i < tt.appends; i++ {
				_, err := ring.Append(ctx, newRecord(i))
				require.NoError(t, err)
			}
			snap, err := ring.Snapshot(ctx, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(snap))
		})
	}
}

func TestRingStore_PruneExpired(t *testing.T) {
	ctx := context.Background()
	ring := store.NewRingStore(5, time.Minute)

	// Wrap the buffer so the prune walk crosses the array end.
	for i := 0; i < 8; i++ {
		_, err := ring.Append(ctx, newRecord(i))
		require.NoError(t, err)
	}

	// Cutoff lands between rec-5 (5s) and rec-6 (6s).
	removed, err := ring.PruneExpired(ctx, base.Add(time.Minute+5500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	snap, err := ring.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-6", "rec-7"}, ids(snap))

	// Appending after a prune keeps FIFO order.
	_, err = ring.Append(ctx, newRecord(8))
	require.NoError(t, err)
	snap, err = ring.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-6", "rec-7", "rec-8"}, ids(snap))
}

func TestRingStore_PruneDisabledWithoutRetention(t *testing.T) {
	ctx := context.Background()
	ring := store.NewRingStore(2, 0)
	_, _ = ring.Append(ctx, newRecord(0))

	removed, err := ring.PruneExpired(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, ring.Len())
}

func TestRingStore_EmptyOperationsAreNoops(t *testing.T) {
	ctx := context.Background()
	ring := store.NewRingStore(2, time.Second)

	removed, err := ring.PruneExpired(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, removed)
	require.NoError(t, ring.Clear(ctx))
	require.NoError(t, ring.Clear(ctx))

	snap, err := ring.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRingStore_Clear(t *testing.T) {
	ctx := context.Background()
	ring := store.NewRingStore(3, 0)
	for i := 0; i < 5; i++ {
		_, _ = ring.Append(ctx, newRecord(i))
	}

	require.NoError(t, ring.Clear(ctx))
	assert.Zero(t, ring.Len())

	_, err := ring.Append(ctx, newRecord(9))
	require.NoError(t, err)
	snap, err := ring.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-9"}, ids(snap))
}

func TestRingStore_QueryUnsupported(t *testing.T) {
	ring := store.NewRingStore(1, 0)

	_, err := ring.Query(context.Background(), dto.LogQueryRequest{})
	assert.ErrorIs(t, err, store.ErrQueryUnsupported)
	_, err = ring.Stats(context.Background(), base)
	assert.ErrorIs(t, err, store.ErrQueryUnsupported)
}

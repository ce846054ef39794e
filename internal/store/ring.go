package store

import (
	"context"
	"sync"
	"time"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
)

// RingStore is a fixed-capacity circular buffer. When full, Append
// overwrites the oldest slot.
type RingStore struct {
	mu        sync.Mutex
	slots     []model.Record
	head      int // index of the oldest live record
	count     int
	retention time.Duration
}

func NewRingStore(capacity int, retention time.Duration) *RingStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingStore{
		slots:     make([]model.Record, capacity),
		retention: retention,
	}
}

func (r *RingStore) Append(_ context.Context, rec model.Record) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.slots)
	if r.count == capacity {
		evicted := r.slots[r.head]
		r.slots[r.head] = rec
		r.head = (r.head + 1) % capacity
		return &evicted, nil
	}
	r.slots[(r.head+r.count)%capacity] = rec
	r.count++
	return nil, nil
}

func (r *RingStore) Snapshot(_ context.Context, limit int) ([]model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]model.Record, n)
	start := r.head + (r.count - n)
	for i := 0; i < n; i++ {
		out[i] = r.slots[(start+i)%len(r.slots)]
	}
	return out, nil
}

func (r *RingStore) Query(context.Context, dto.LogQueryRequest) (*dto.LogQueryResponse, error) {
	return nil, ErrQueryUnsupported
}

func (r *RingStore) Stats(context.Context, time.Time) (*dto.LogStats, error) {
	return nil, ErrQueryUnsupported
}

// PruneExpired drops records from the head while they are older than the
// cutoff. Slots are in arrival order, so the walk stops at the first
// record inside the window.
func (r *RingStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for r.count > 0 && r.slots[r.head].ReceivedAt.Before(cutoff) {
		r.slots[r.head] = model.Record{}
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		removed++
	}
	if r.count == 0 {
		r.head = 0
	}
	return removed, nil
}

func (r *RingStore) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = make([]model.Record, len(r.slots))
	r.head = 0
	r.count = 0
	return nil
}

func (r *RingStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *RingStore) Capacity() int {
	return len(r.slots)
}

func (r *RingStore) Backend() string { return "memory" }

func (r *RingStore) Close() error { return nil }

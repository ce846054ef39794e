package store

import (
	"context"
	"errors"
	"time"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
)

var (
	// ErrQueryUnsupported is returned by backends without a query index.
	ErrQueryUnsupported = errors.New("query not supported by this store backend")
	ErrClosed           = errors.New("store is closed")
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// RetentionStore holds the recent records under a fixed count or age
// budget. Implementations are safe for concurrent use, but callers that
// need snapshot consistency with other state (the hub) serialize calls
// themselves.
type RetentionStore interface {
	// Append adds rec and returns the record it displaced, if any.
	Append(ctx context.Context, rec model.Record) (*model.Record, error)
	// Snapshot returns up to limit most recent records, oldest first.
	Snapshot(ctx context.Context, limit int) ([]model.Record, error)
	// Query returns matching records newest first.
	Query(ctx context.Context, req dto.LogQueryRequest) (*dto.LogQueryResponse, error)
	Stats(ctx context.Context, now time.Time) (*dto.LogStats, error)
	// PruneExpired removes records received before now minus the
	// retention window. A zero window disables pruning.
	PruneExpired(ctx context.Context, now time.Time) (int, error)
	Clear(ctx context.Context) error
	Len() int
	Backend() string
	Close() error
}

// normalizeQuery applies paging defaults shared by query-capable backends.
func normalizeQuery(req dto.LogQueryRequest) dto.LogQueryRequest {
	if req.Limit <= 0 {
		req.Limit = DefaultQueryLimit
	}
	if req.Limit > MaxQueryLimit {
		req.Limit = MaxQueryLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req
}

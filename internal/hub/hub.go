package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/store"
)

var ErrShutdown = errors.New("hub is shut down")

const (
	DefaultSnapshotLimit = 500
	DefaultSendQueue     = 1024
)

type Config struct {
	SnapshotLimit int
	SendQueue     int
}

// Hub owns the retention store, the service registry and the set of live
// viewers. Every mutation of the store and every enqueue to a viewer
// happens under mu, which gives all viewers the same total order of
// events and makes snapshot-then-register atomic with respect to ingest.
type Hub struct {
	mu       sync.Mutex
	store    store.RetentionStore
	registry *Registry
	viewers  map[*Viewer]struct{}
	closed   bool

	snapshotLimit int
	sendQueue     int
}

func New(st store.RetentionStore, cfg Config) *Hub {
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = DefaultSnapshotLimit
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	return &Hub{
		store:         st,
		registry:      NewRegistry(),
		viewers:       make(map[*Viewer]struct{}),
		snapshotLimit: cfg.SnapshotLimit,
		sendQueue:     cfg.SendQueue,
	}
}

// Subscribe registers a new viewer. Its first outbox message is the init
// snapshot; every later ingest follows it with no gap or overlap.
func (h *Hub) Subscribe(ctx context.Context) (*Viewer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrShutdown
	}

	v := newViewer(h.sendQueue)
	payload, err := h.initPayloadLocked(ctx)
	if err != nil {
		return nil, err
	}
	v.enqueue(payload)
	v.state.Store(int32(StateActive))
	h.viewers[v] = struct{}{}

	log.Debug().Str("viewer", v.ID()).Int("viewers", len(h.viewers)).Msg("Viewer connected")
	return v, nil
}

// Unsubscribe removes v from the live set. Safe to call more than once.
func (h *Hub) Unsubscribe(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		v.close()
		return
	}
	h.removeLocked(v)
	log.Debug().Str("viewer", v.ID()).Int("viewers", len(h.viewers)).Msg("Viewer disconnected")
}

// Ingest appends rec and broadcasts it. A record the store rejects is not
// broadcast, so viewers never see what a later snapshot would not contain.
func (h *Hub) Ingest(ctx context.Context, rec model.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrShutdown
	}

	payload, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	var discovered []byte
	if !h.registry.Contains(rec.Service) {
		if discovered, err = encodeService(rec.Service); err != nil {
			return fmt.Errorf("encode service %q: %w", rec.Service, err)
		}
	}

	if _, err := h.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append %s: %w", rec.ID, err)
	}

	if h.registry.Add(rec.Service) {
		h.broadcastLocked(discovered)
		log.Info().Str("service", rec.Service).Msg("Service discovered")
	}
	h.broadcastLocked(payload)
	return nil
}

// HandleMessage dispatches one control message from v. Unknown or
// malformed messages are dropped without affecting the connection.
func (h *Hub) HandleMessage(ctx context.Context, v *Viewer, data []byte) {
	if v.State() != StateActive {
		return
	}
	kind, ok := ParseControl(data)
	if !ok {
		log.Trace().Str("viewer", v.ID()).Msg("Ignoring unrecognized viewer message")
		return
	}

	switch kind {
	case KindPing:
		h.sendTo(v, pongPayload)
	case KindClear:
		if err := h.Clear(ctx); err != nil {
			log.Error().Err(err).Str("viewer", v.ID()).Msg("Clear requested by viewer failed")
		}
	case KindSubscribe:
		// Viewers are subscribed on connect.
	}
}

// Clear empties the store and the registry and tells every viewer to
// reset its view.
func (h *Hub) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrShutdown
	}

	if err := h.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	h.registry.Reset()
	h.broadcastLocked(clearPayload)
	log.Info().Int("viewers", len(h.viewers)).Msg("Store cleared")
	return nil
}

// Prune drops expired records. Viewers are not told per record; when
// anything was removed each viewer gets a fresh init snapshot instead.
func (h *Hub) Prune(ctx context.Context, now time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrShutdown
	}

	removed, err := h.store.PruneExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	if removed == 0 || len(h.viewers) == 0 {
		return removed, nil
	}

	payload, err := h.initPayloadLocked(ctx)
	if err != nil {
		return removed, err
	}
	h.broadcastLocked(payload)
	return removed, nil
}

func (h *Hub) Services() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.List()
}

func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Store exposes the retention store for read-only collaborators (query
// and stats endpoints).
func (h *Hub) Store() store.RetentionStore {
	return h.store
}

// Shutdown closes every viewer and rejects further work. It does not
// close the store; its owner does that after maintenance has stopped.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	count := len(h.viewers)
	for v := range h.viewers {
		h.removeLocked(v)
	}
	log.Info().Int("viewers", count).Msg("Hub shut down")
}

func (h *Hub) sendTo(v *Viewer, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		return
	}
	if !v.enqueue(payload) {
		h.dropSlowLocked(v)
	}
}

func (h *Hub) initPayloadLocked(ctx context.Context) ([]byte, error) {
	records, err := h.store.Snapshot(ctx, h.snapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	payload, err := encodeInit(records, h.registry.List())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

func (h *Hub) broadcastLocked(payload []byte) {
	for v := range h.viewers {
		if !v.enqueue(payload) {
			h.dropSlowLocked(v)
		}
	}
}

func (h *Hub) dropSlowLocked(v *Viewer) {
	log.Warn().Str("viewer", v.ID()).Int("queue", cap(v.outbox)).Msg("Viewer send queue full, disconnecting")
	h.removeLocked(v)
}

func (h *Hub) removeLocked(v *Viewer) {
	delete(h.viewers, v)
	v.close()
}

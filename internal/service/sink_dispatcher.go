package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/model"
)

// RecordSink receives batches of records that were accepted by the hub.
type RecordSink interface {
	Name() string
	WriteRecords(ctx context.Context, records []model.Record) error
}

type SinkDispatcher interface {
	// Enqueue never blocks. It reports false when the queue is full and
	// the record was dropped.
	Enqueue(rec model.Record) bool
	Run(ctx context.Context, wg *sync.WaitGroup)
	Dropped() uint64
}

type sinkDispatcher struct {
	sinks        []RecordSink
	queue        chan model.Record
	batchSize    int
	maxBatchWait time.Duration
	dropped      atomic.Uint64
}

func NewSinkDispatcher(cfg *config.Config, sinks []RecordSink) SinkDispatcher {
	return &sinkDispatcher{
		sinks:        sinks,
		queue:        make(chan model.Record, cfg.Sink.QueueSize),
		batchSize:    cfg.Sink.BatchSize,
		maxBatchWait: cfg.Sink.MaxBatchWait,
	}
}

func (d *sinkDispatcher) Enqueue(rec model.Record) bool {
	if len(d.sinks) == 0 {
		return true
	}
	select {
	case d.queue <- rec:
		return true
	default:
		if n := d.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Warn().Uint64("dropped", n).Msg("Sink queue full, dropping records")
		}
		return false
	}
}

func (d *sinkDispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *sinkDispatcher) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if len(d.sinks) == 0 {
		log.Info().Msg("No record sinks enabled, dispatcher idle")
		return
	}
	log.Info().Int("sinks", len(d.sinks)).Int("batch_size", d.batchSize).Msg("Starting sink dispatcher loop...")

	batch := make([]model.Record, 0, d.batchSize)
	ticker := time.NewTicker(d.maxBatchWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drain(&batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			d.flush(flushCtx, batch)
			cancel()
			log.Info().Uint64("dropped", d.Dropped()).Msg("Sink dispatcher stopped")
			return
		case rec := <-d.queue:
			batch = append(batch, rec)
			if len(batch) >= d.batchSize {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain moves whatever is still queued into batch without blocking.
func (d *sinkDispatcher) drain(batch *[]model.Record) {
	for {
		select {
		case rec := <-d.queue:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

// flush hands the batch to every sink. A failing sink does not stop the
// others; its error is logged and the batch is not retried.
func (d *sinkDispatcher) flush(ctx context.Context, batch []model.Record) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range d.sinks {
		if err := sink.WriteRecords(ctx, batch); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Debug().Str("sink", sink.Name()).Msg("Sink write cancelled")
				continue
			}
			log.Error().Err(err).Str("sink", sink.Name()).Int("batch_size", len(batch)).Msg("Failed to write batch to sink")
			continue
		}
		log.Debug().Str("sink", sink.Name()).Int("batch_size", len(batch)).Msg("Wrote batch to sink")
	}
}

package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/model"
)

// archiveDocument is the indexed shape of a record. @timestamp carries
// the effective time so that range queries cover lines without a parsed
// timestamp too.
type archiveDocument struct {
	EffectiveTime time.Time `json:"@timestamp"`
	model.Record
}

// ArchiveStore bulk indexes records into daily indices named
// "<prefix>-YYYY-MM-DD".
type ArchiveStore struct {
	bulkIndexer     esutil.BulkIndexer
	indexPrefix     string
	countSuccessful atomic.Uint64
	countFailed     atomic.Uint64
}

func NewArchiveStore(lc fx.Lifecycle, cfg *config.Config, client *elasticsearch.Client) (*ArchiveStore, error) {
	store := &ArchiveStore{
		indexPrefix: cfg.Elasticsearch.LogIndex,
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    cfg.Elasticsearch.BulkWorkers,
		FlushBytes:    cfg.Elasticsearch.FlushBytes,
		FlushInterval: cfg.Elasticsearch.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			log.Error().Err(err).Msg("BulkIndexer error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bulk indexer: %w", err)
	}
	store.bulkIndexer = bi

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Elasticsearch BulkIndexer...")
			return store.Close(ctx)
		},
	})
	log.Info().Str("index_prefix", store.indexPrefix).Msg("Elasticsearch archive initialized")
	return store, nil
}

func (s *ArchiveStore) Name() string { return "elasticsearch" }

// WriteRecords queues records on the bulk indexer. Indexing itself is
// asynchronous; per-item failures are counted by the callbacks.
func (s *ArchiveStore) WriteRecords(ctx context.Context, records []model.Record) error {
	var failed int
	for _, rec := range records {
		data, err := json.Marshal(archiveDocument{EffectiveTime: rec.EffectiveTime(), Record: rec})
		if err != nil {
			s.countFailed.Add(1)
			failed++
			continue
		}

		err = s.bulkIndexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			Index:      IndexName(s.indexPrefix, rec.EffectiveTime()),
			DocumentID: rec.ID,
			Body:       bytes.NewReader(data),
			OnSuccess: func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
				s.countSuccessful.Add(1)
			},
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				s.countFailed.Add(1)
				if err != nil {
					log.Error().Err(err).Str("id", item.DocumentID).Msg("Failed to index record")
					return
				}
				log.Error().Str("id", item.DocumentID).Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("Failed to index record")
			},
		})
		if err != nil {
			s.countFailed.Add(1)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records could not be queued for indexing", failed, len(records))
	}
	return nil
}

func (s *ArchiveStore) Close(ctx context.Context) error {
	err := s.bulkIndexer.Close(ctx)
	stats := s.bulkIndexer.Stats()
	log.Info().
		Uint64("indexed", stats.NumIndexed).
		Uint64("added", stats.NumAdded).
		Uint64("flushed", stats.NumFlushed).
		Uint64("failed", stats.NumFailed).
		Uint64("requests", stats.NumRequests).
		Uint64("callback_successful", s.countSuccessful.Load()).
		Uint64("callback_failed", s.countFailed.Load()).
		Msg("Elasticsearch BulkIndexer final stats")
	return err
}

// IndexName returns the daily index a record with time t belongs to.
func IndexName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, t.UTC().Format("2006-01-02"))
}

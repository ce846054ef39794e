package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
	kafkaGo "github.com/segmentio/kafka-go"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/kafka"
)

type KafkaSourceService interface {
	Run(ctx context.Context, wg *sync.WaitGroup)
}

type kafkaSourceService struct {
	consumer    kafka.LineConsumer
	ingest      IngestService
	batchSize   int
	maxWaitTime time.Duration
	newBackOff  func() backoff.BackOff
}

func NewKafkaSourceService(consumer kafka.LineConsumer, ingest IngestService, cfg *config.Config) KafkaSourceService {
	return &kafkaSourceService{
		consumer:    consumer,
		ingest:      ingest,
		batchSize:   cfg.Sink.BatchSize,
		maxWaitTime: cfg.Sink.MaxBatchWait,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run consumes until ctx is cancelled. Fetch failures back off
// exponentially; a successful batch resets the backoff.
func (s *kafkaSourceService) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info().Msg("Starting Kafka source loop...")

	b := backoff.WithContext(s.newBackOff(), ctx)
	for {
		if ctx.Err() != nil {
			log.Info().Msg("Kafka source loop stopping due to context cancellation.")
			return
		}

		err := s.processBatch(ctx)
		if err == nil {
			b.Reset()
			continue
		}
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Kafka source loop stopping due to context cancellation.")
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		log.Error().Err(err).Dur("retry_in", wait).Msg("Error processing Kafka batch")
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}

// processBatch fetches up to batchSize messages or until maxWaitTime
// passes, ingests every line, then commits the batch.
func (s *kafkaSourceService) processBatch(ctx context.Context) error {
	messages := make([]kafkaGo.Message, 0, s.batchSize)
	deadline := time.Now().Add(s.maxWaitTime)

	for len(messages) < s.batchSize {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := s.consumer.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if len(messages) > 0 {
				break
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		resp := s.ingest.IngestText(ctx, string(msg.Value))
		if resp.Failed > 0 {
			log.Warn().Int64("offset", msg.Offset).Int("failed", resp.Failed).Msg("Some lines from Kafka message were not ingested")
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return nil
	}
	if err := s.consumer.CommitMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed committing kafka messages: %w", err)
	}
	log.Debug().Int("batch_size", len(messages)).Msg("Processed and committed Kafka batch.")
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/model"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RecordProducer publishes parsed records as JSON, keyed by service so a
// service's records stay on one partition and keep their order.
type RecordProducer struct {
	writer MessageWriter
	topic  string
}

func NewKafkaRecordProducer(lc fx.Lifecycle, cfg *config.Config) (*RecordProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.SinkTopic == "" {
		return nil, errors.New("kafka brokers or sink topic is not configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.SinkTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.Sink.BatchSize,
		BatchTimeout: cfg.Sink.MaxBatchWait,
	}
	p := NewRecordProducer(writer, cfg.Kafka.SinkTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Kafka producer")
			return p.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.SinkTopic).Msg("Kafka producer initialized")
	return p, nil
}

func NewRecordProducer(writer MessageWriter, topic string) *RecordProducer {
	return &RecordProducer{writer: writer, topic: topic}
}

func (p *RecordProducer) Name() string { return "kafka" }

func (p *RecordProducer) WriteRecords(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			log.Error().Err(err).Str("id", rec.ID).Msg("Failed to marshal record for Kafka")
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(rec.Service),
			Value: value,
			Time:  rec.ReceivedAt,
		})
	}
	if len(messages) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(messages), p.topic, err)
	}
	log.Debug().Int("message_count", len(messages)).Str("topic", p.topic).Msg("Produced records to Kafka")
	return nil
}

func (p *RecordProducer) Close() error {
	return p.writer.Close()
}

package timescaledb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/model"
)

type MetricStore interface {
	StoreMetricEvents(ctx context.Context, events []model.MetricEvent) error
	Close()
}

type timescaleMetricStore struct {
	pool      *pgxpool.Pool
	tableName string
}

const (
	metricEventsTableName = "viewer_metric_events"
	colTime               = "time"
	colMetricName         = "metric_name"
	colService            = "service"
	colTags               = "tags" // JSONB
)

func NewTimescaleMetricStore(lc fx.Lifecycle, cfg *config.Config) (MetricStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.TimescaleDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid TimescaleDB DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TimescaleDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping TimescaleDB: %w", err)
	}
	log.Info().Msg("TimescaleDB connection pool created and verified.")

	store := &timescaleMetricStore{
		pool:      pool,
		tableName: metricEventsTableName,
	}

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSetup()
	if err := store.ensureHypertable(setupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed ensuring hypertable: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing TimescaleDB connection pool...")
			store.Close()
			return nil
		},
	})
	return store, nil
}

func (s *timescaleMetricStore) ensureHypertable(ctx context.Context) error {
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s TIMESTAMPTZ NOT NULL,
			%s TEXT NOT NULL,
			%s TEXT NOT NULL,
			%s JSONB
		);`,
		s.tableName, colTime, colMetricName, colService, colTags)
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create base table %s: %w", s.tableName, err)
	}

	var isHypertable bool
	_ = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = $1);`,
		s.tableName,
	).Scan(&isHypertable)

	if !isHypertable {
		if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb;"); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure timescaledb extension exists, trying to proceed")
		}
		createHyperSQL := fmt.Sprintf(
			"SELECT create_hypertable('%s', '%s', if_not_exists => TRUE, chunk_time_interval => INTERVAL '1 hour');",
			s.tableName, colTime,
		)
		if _, err := s.pool.Exec(ctx, createHyperSQL); err != nil && !strings.Contains(err.Error(), "already a hypertable") {
			return fmt.Errorf("failed to create hypertable %s: %w", s.tableName, err)
		}
		log.Info().Str("table", s.tableName).Msg("Ensured hypertable.")
	}

	indexSQL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%[1]s_name_service_time ON %[1]s (%[2]s, %[3]s, %[4]s DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_tags ON %[1]s USING GIN (%[5]s);
	`, s.tableName, colMetricName, colService, colTime, colTags)
	if _, err := s.pool.Exec(ctx, indexSQL); err != nil {
		log.Warn().Err(err).Msg("Failed to create indexes on metrics table (continuing)")
	}
	return nil
}

// StoreMetricEvents bulk loads events with COPY.
func (s *timescaleMetricStore) StoreMetricEvents(ctx context.Context, events []model.MetricEvent) error {
	if len(events) == 0 {
		return nil
	}

	columns := []string{colTime, colMetricName, colService, colTags}
	source := pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
		e := events[i]
		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal metric tags, inserting null")
			tagsJSON = nil
		}
		return []any{e.Time, e.MetricName, e.Service, tagsJSON}, nil
	})

	copyCount, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.tableName}, columns, source)
	if err != nil {
		return fmt.Errorf("timescaledb copyfrom failed: %w", err)
	}
	if int(copyCount) != len(events) {
		log.Warn().Int64("inserted", copyCount).Int("expected", len(events)).Msg("TimescaleDB CopyFrom event count mismatch")
	}
	return nil
}

func (s *timescaleMetricStore) Close() {
	s.pool.Close()
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS logs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	raw         TEXT NOT NULL,
	timestamp   INTEGER,
	service     TEXT NOT NULL,
	level       TEXT,
	message     TEXT NOT NULL,
	logger      TEXT,
	received_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_service ON logs(service);
CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_received ON logs(received_at);

CREATE VIRTUAL TABLE IF NOT EXISTS logs_fts USING fts5(
	message,
	service,
	logger,
	content='logs',
	content_rowid='seq'
);

CREATE TRIGGER IF NOT EXISTS logs_ai AFTER INSERT ON logs BEGIN
	INSERT INTO logs_fts(rowid, message, service, logger)
	VALUES (NEW.seq, NEW.message, NEW.service, NEW.logger);
END;

CREATE TRIGGER IF NOT EXISTS logs_ad AFTER DELETE ON logs BEGIN
	INSERT INTO logs_fts(logs_fts, rowid, message, service, logger)
	VALUES ('delete', OLD.seq, OLD.message, OLD.service, OLD.logger);
END;
`

const recordColumns = `id, raw, timestamp, service, level, message, logger, received_at`

// effectiveTime orders and filters records without a parsed timestamp by
// their receive time.
const effectiveTime = `COALESCE(timestamp, received_at)`

type SQLiteConfig struct {
	// Path of the database file. When empty a fresh file named after the
	// current time is created under Dir.
	Path       string
	Dir        string
	PoolSize   int
	Retention  time.Duration
	MaxRecords int // 0 = bounded by retention only
}

// SQLiteStore persists records in SQLite with an FTS5 index for free-text
// search. The index is maintained by triggers, so prune and clear remove
// index entries in the same statement that removes the rows.
type SQLiteStore struct {
	pool       *sqlitex.Pool
	path       string
	retention  time.Duration
	maxRecords int

	// mu serializes writers and guards count.
	mu     sync.Mutex
	count  int
	closed bool
}

func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "docker-log-viewer")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: creating %s: %w", dir, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("logs-%d.db", time.Now().UnixMilli()))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", path, err)
	}

	s := &SQLiteStore{
		pool:       pool,
		path:       path,
		retention:  cfg.Retention,
		maxRecords: cfg.MaxRecords,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("path", path).Int("pool_size", poolSize).Int("records", s.count).Msg("SQLite store opened")
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: creating schema: %w", err)
	}
	return sqlitex.Execute(conn, "SELECT COUNT(*) FROM logs", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			s.count = stmt.ColumnInt(0)
			return nil
		},
	})
}

func (s *SQLiteStore) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: take: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec model.Record) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	evicted, err := s.insert(conn, rec)
	if err != nil {
		return nil, err
	}
	if evicted == nil {
		s.count++
	}
	return evicted, nil
}

// insert writes rec, evicting the oldest row when over maxRecords, in one
// transaction. The caller adjusts count only once the commit succeeded.
func (s *SQLiteStore) insert(conn *sqlite.Conn, rec model.Record) (evicted *model.Record, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO logs (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: recordArgs(rec)})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: insert %s: %w", rec.ID, err)
	}

	if s.maxRecords > 0 && s.count+1 > s.maxRecords {
		evicted, err = s.evictOldest(conn)
		if err != nil {
			return nil, err
		}
	}
	return evicted, nil
}

func (s *SQLiteStore) evictOldest(conn *sqlite.Conn) (*model.Record, error) {
	var oldest *model.Record
	var seq int64
	err := sqlitex.Execute(conn,
		`SELECT `+recordColumns+`, seq FROM logs ORDER BY seq ASC LIMIT 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec := scanRecord(stmt)
				oldest = &rec
				seq = stmt.ColumnInt64(8)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: selecting oldest: %w", err)
	}
	if oldest == nil {
		return nil, nil
	}
	if err := sqlitex.Execute(conn, `DELETE FROM logs WHERE seq = ?`, &sqlitex.ExecOptions{Args: []any{seq}}); err != nil {
		return nil, fmt.Errorf("sqlite store: evicting %s: %w", oldest.ID, err)
	}
	return oldest, nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context, limit int) ([]model.Record, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := `SELECT ` + recordColumns + ` FROM logs ORDER BY seq DESC`
	var args []any
	if limit >= 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	records := make([]model.Record, 0)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: snapshot: %w", err)
	}
	// Newest first from the query; viewers render oldest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *SQLiteStore) Query(ctx context.Context, req dto.LogQueryRequest) (*dto.LogQueryResponse, error) {
	req = normalizeQuery(req)
	where, args := buildWhere(req)

	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	resp := &dto.LogQueryResponse{
		Logs:        make([]model.Record, 0),
		Services:    make([]string, 0),
		LevelCounts: make(map[string]int),
	}

	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM logs WHERE `+where, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			resp.Total = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: counting: %w", err)
	}

	pageArgs := append(append([]any{}, args...), req.Limit, req.Offset)
	err = sqlitex.Execute(conn,
		`SELECT `+recordColumns+` FROM logs WHERE `+where+
			` ORDER BY `+effectiveTime+` DESC, seq DESC LIMIT ? OFFSET ?`,
		&sqlitex.ExecOptions{
			Args: pageArgs,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				resp.Logs = append(resp.Logs, scanRecord(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: querying: %w", err)
	}

	err = sqlitex.Execute(conn, `SELECT DISTINCT service FROM logs ORDER BY service`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			resp.Services = append(resp.Services, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: listing services: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT level, COUNT(*) FROM logs WHERE `+where+` AND level IS NOT NULL GROUP BY level`,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				resp.LevelCounts[stmt.ColumnText(0)] = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: counting levels: %w", err)
	}

	return resp, nil
}

func buildWhere(req dto.LogQueryRequest) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if search := strings.TrimSpace(req.Search); search != "" {
		// Quoted as a single FTS5 phrase so user input is never parsed as
		// query syntax.
		clauses = append(clauses, `logs.seq IN (SELECT rowid FROM logs_fts WHERE logs_fts MATCH ?)`)
		args = append(args, `"`+strings.ReplaceAll(search, `"`, `""`)+`"`)
	}
	if len(req.Services) > 0 {
		clauses = append(clauses, `logs.service IN (`+placeholders(len(req.Services))+`)`)
		for _, svc := range req.Services {
			args = append(args, svc)
		}
	}
	if len(req.Levels) > 0 {
		clauses = append(clauses, `logs.level IN (`+placeholders(len(req.Levels))+`)`)
		for _, lvl := range req.Levels {
			args = append(args, string(lvl))
		}
	}
	if req.StartTime != nil {
		clauses = append(clauses, effectiveTime+` >= ?`)
		args = append(args, req.StartTime.UnixNano())
	}
	if req.EndTime != nil {
		clauses = append(clauses, effectiveTime+` <= ?`)
		args = append(args, req.EndTime.UnixNano())
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*dto.LogStats, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	stats := &dto.LogStats{
		Services:      make([]dto.NameCount, 0),
		Levels:        make([]dto.LevelCount, 0),
		LogsPerMinute: make([]dto.MinuteCount, 0),
	}

	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM logs`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.TotalLogs = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: stats total: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT service, COUNT(*) AS n FROM logs GROUP BY service ORDER BY n DESC, service`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Services = append(stats.Services, dto.NameCount{Name: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: stats services: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT level, COUNT(*) AS n FROM logs WHERE level IS NOT NULL GROUP BY level ORDER BY n DESC, level`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Levels = append(stats.Levels, dto.LevelCount{Level: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: stats levels: %w", err)
	}

	// Activity over the last 30 minutes, bucketed per minute.
	err = sqlitex.Execute(conn,
		`SELECT strftime('%Y-%m-%d %H:%M', `+effectiveTime+`/1000000000, 'unixepoch') AS minute, COUNT(*)
		FROM logs WHERE `+effectiveTime+` > ? GROUP BY minute ORDER BY minute`,
		&sqlitex.ExecOptions{
			Args: []any{now.Add(-30 * time.Minute).UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.LogsPerMinute = append(stats.LogsPerMinute, dto.MinuteCount{Minute: stmt.ColumnText(0), Count: stmt.ColumnInt64(1)})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: stats per minute: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM logs WHERE received_at < ?`, &sqlitex.ExecOptions{Args: []any{cutoff}}); err != nil {
		return 0, fmt.Errorf("sqlite store: prune: %w", err)
	}
	removed := conn.Changes()
	s.count -= removed
	if s.count < 0 {
		s.count = 0
	}
	return removed, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, `DELETE FROM logs`, nil); err != nil {
		return fmt.Errorf("sqlite store: clear: %w", err)
	}
	s.count = 0
	return nil
}

func (s *SQLiteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

func (s *SQLiteStore) Path() string { return s.path }

// Close waits for borrowed connections to be returned, then closes the pool.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	log.Info().Str("path", s.path).Msg("SQLite store closed")
	return nil
}

func recordArgs(rec model.Record) []any {
	var ts, level, logger any
	if rec.Timestamp != nil {
		ts = rec.Timestamp.UnixNano()
	}
	if rec.Level != "" {
		level = string(rec.Level)
	}
	if rec.Logger != "" {
		logger = rec.Logger
	}
	return []any{rec.ID, rec.Raw, ts, rec.Service, level, rec.Message, logger, rec.ReceivedAt.UnixNano()}
}

// scanRecord reads the recordColumns projection.
func scanRecord(stmt *sqlite.Stmt) model.Record {
	rec := model.Record{
		ID:         stmt.ColumnText(0),
		Raw:        stmt.ColumnText(1),
		Service:    stmt.ColumnText(3),
		Message:    stmt.ColumnText(5),
		ReceivedAt: time.Unix(0, stmt.ColumnInt64(7)).UTC(),
	}
	if !stmt.ColumnIsNull(2) {
		ts := time.Unix(0, stmt.ColumnInt64(2)).UTC()
		rec.Timestamp = &ts
	}
	if !stmt.ColumnIsNull(4) {
		rec.Level = model.Level(stmt.ColumnText(4))
	}
	if !stmt.ColumnIsNull(6) {
		rec.Logger = stmt.ColumnText(6)
	}
	return rec
}

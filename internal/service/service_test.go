package service_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/filestate"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/parser"
	"log-viewer-backend/internal/service"
	"log-viewer-backend/internal/store"
)

type fakeSink struct {
	mu      sync.Mutex
	name    string
	batches [][]model.Record
	err     error
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) WriteRecords(_ context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]model.Record(nil), records...))
	return s.err
}

func (s *fakeSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, batch := range s.batches {
		for _, rec := range batch {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

func sinkConfig(batchSize, queueSize int, wait time.Duration) *config.Config {
	return &config.Config{Sink: config.SinkConfig{BatchSize: batchSize, MaxBatchWait: wait, QueueSize: queueSize}}
}

func runDispatcher(t *testing.T, d service.SinkDispatcher) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go d.Run(ctx, &wg)
	return func() {
		cancel()
		wg.Wait()
	}
}

func TestSinkDispatcher_BatchesBySize(t *testing.T) {
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", err: errors.New("unavailable")}
	d := service.NewSinkDispatcher(sinkConfig(2, 10, time.Hour), []service.RecordSink{bad, good})
	stop := runDispatcher(t, d)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.True(t, d.Enqueue(model.Record{ID: id}))
	}
	assert.Eventually(t, func() bool { return len(good.ids()) == 4 }, 2*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, []string{"a", "b", "c", "d"}, good.ids())
	assert.Equal(t, []string{"a", "b", "c", "d"}, bad.ids(), "a failing sink still sees every batch")
}

func TestSinkDispatcher_FlushesOnStop(t *testing.T) {
	sink := &fakeSink{name: "sink"}
	d := service.NewSinkDispatcher(sinkConfig(100, 10, time.Hour), []service.RecordSink{sink})
	stop := runDispatcher(t, d)

	d.Enqueue(model.Record{ID: "only"})
	stop()
	assert.Equal(t, []string{"only"}, sink.ids())
}

func TestSinkDispatcher_DropsWhenFull(t *testing.T) {
	sink := &fakeSink{name: "sink"}
	d := service.NewSinkDispatcher(sinkConfig(10, 2, time.Hour), []service.RecordSink{sink})

	assert.True(t, d.Enqueue(model.Record{ID: "1"}))
	assert.True(t, d.Enqueue(model.Record{ID: "2"}))
	assert.False(t, d.Enqueue(model.Record{ID: "3"}))
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestSinkDispatcher_NoSinks(t *testing.T) {
	d := service.NewSinkDispatcher(sinkConfig(10, 1, time.Hour), nil)
	for i := 0; i < 5; i++ {
		assert.True(t, d.Enqueue(model.Record{}))
	}
	stop := runDispatcher(t, d)
	stop()
	assert.Zero(t, d.Dropped())
}

type harness struct {
	hub    *hub.Hub
	sink   *fakeSink
	ingest service.IngestService
	stop   func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := hub.New(store.NewRingStore(100, 0), hub.Config{})
	sink := &fakeSink{name: "sink"}
	d := service.NewSinkDispatcher(sinkConfig(1, 100, time.Hour), []service.RecordSink{sink})
	stop := runDispatcher(t, d)
	t.Cleanup(stop)
	return &harness{
		hub:    h,
		sink:   sink,
		ingest: service.NewIngestService(parser.NewLineParser(), h, d),
		stop:   stop,
	}
}

func (h *harness) messages(t *testing.T) []string {
	records, err := h.hub.Store().Snapshot(context.Background(), -1)
	require.NoError(t, err)
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Message
	}
	return out
}

func TestIngestService_IngestLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.ingest.IngestLine(ctx, "web | 2024-01-11T16:40:38.944Z INFO Starting server\r\n")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "web", rec.Service)
	assert.Equal(t, model.LevelInfo, rec.Level)

	rec, err = h.ingest.IngestLine(ctx, "   ")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Equal(t, []string{"Starting server"}, h.messages(t))
	assert.Equal(t, []string{"web"}, h.hub.Services())

	h.stop()
	assert.Len(t, h.sink.ids(), 1)
}

func TestIngestService_IngestText(t *testing.T) {
	h := newHarness(t)

	resp := h.ingest.IngestText(context.Background(), "web | one\n\nweb | two\r\n   \ndb | three")
	assert.Equal(t, 3, resp.Accepted)
	assert.Zero(t, resp.Failed)
	assert.Equal(t, []string{"one", "two", "three"}, h.messages(t))
}

func TestIngestService_HubFailureCounted(t *testing.T) {
	h := newHarness(t)
	h.hub.Shutdown()

	resp := h.ingest.IngestText(context.Background(), "web | one\nweb | two")
	assert.Equal(t, 2, resp.Failed)
	assert.Zero(t, resp.Accepted)

	_, err := h.ingest.IngestLine(context.Background(), "web | three")
	assert.ErrorIs(t, err, hub.ErrShutdown)
	h.stop()
	assert.Empty(t, h.sink.ids())
}

func TestFileSourceService_TailsAppendedLines(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "web.log")
	require.NoError(t, os.WriteFile(logPath, []byte("web | first\nweb | second\nweb | partial"), 0o644))

	cfg := &config.Config{FileSource: config.FileSourceConfig{Paths: []string{filepath.Join(dir, "*.log")}}}
	stateMgr := filestate.NewManager(filepath.Join(dir, "state.json"))
	svc := service.NewFileSourceService(cfg, stateMgr, h.ingest)
	ctx := context.Background()

	require.NoError(t, svc.ProcessFiles(ctx))
	assert.Equal(t, []string{"first", "second"}, h.messages(t))

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(" line\nweb | third\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, svc.ProcessFiles(ctx))
	assert.Equal(t, []string{"first", "second", "partial line", "third"}, h.messages(t))

	state, err := stateMgr.LoadState()
	require.NoError(t, err)
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), state[logPath])

	// Nothing new, nothing ingested.
	require.NoError(t, svc.ProcessFiles(ctx))
	assert.Len(t, h.messages(t), 4)
}

func TestFileSourceService_TruncatedFileRestarts(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("app | a long first line\n"), 0o644))

	cfg := &config.Config{FileSource: config.FileSourceConfig{Paths: []string{logPath}}}
	svc := service.NewFileSourceService(cfg, filestate.NewManager(filepath.Join(dir, "state.json")), h.ingest)
	require.NoError(t, svc.ProcessFiles(context.Background()))

	require.NoError(t, os.WriteFile(logPath, []byte("app | new\n"), 0o644))
	require.NoError(t, svc.ProcessFiles(context.Background()))
	assert.Equal(t, []string{"a long first line", "new"}, h.messages(t))
}

type fakeConsumer struct {
	mu        sync.Mutex
	pending   []kafkaGo.Message
	fetchErr  error
	committed []int64
}

func (c *fakeConsumer) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	c.mu.Lock()
	if c.fetchErr != nil {
		err := c.fetchErr
		c.fetchErr = nil
		c.mu.Unlock()
		return kafkaGo.Message{}, err
	}
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return kafkaGo.Message{}, ctx.Err()
}

func (c *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		c.committed = append(c.committed, msg.Offset)
	}
	return nil
}

func (c *fakeConsumer) Close() error { return nil }

func (c *fakeConsumer) committedOffsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.committed...)
}

func TestKafkaSourceService_IngestsAndCommits(t *testing.T) {
	h := newHarness(t)
	consumer := &fakeConsumer{
		fetchErr: errors.New("broker not available"),
		pending: []kafkaGo.Message{
			{Offset: 1, Value: []byte("web | one\nweb | two")},
			{Offset: 2, Value: []byte("db | three\n")},
		},
	}
	svc := service.NewKafkaSourceService(consumer, h.ingest, sinkConfig(10, 10, 100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go svc.Run(ctx, &wg)

	assert.Eventually(t, func() bool { return len(consumer.committedOffsets()) == 2 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, []int64{1, 2}, consumer.committedOffsets())
	assert.Equal(t, []string{"one", "two", "three"}, h.messages(t))
}

func TestStdinSource_EchoesAndIngests(t *testing.T) {
	h := newHarness(t)
	var out bytes.Buffer
	src := service.NewStdinSource(h.ingest, strings.NewReader("web | one\n\ndb | two"), &out, true)

	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, "web | one\n\ndb | two\n", out.String())
	assert.Equal(t, []string{"one", "two"}, h.messages(t))
}

func TestStdinSource_NoEcho(t *testing.T) {
	h := newHarness(t)
	var out bytes.Buffer
	src := service.NewStdinSource(h.ingest, strings.NewReader("web | one\n"), &out, false)

	require.NoError(t, src.Run(context.Background()))
	assert.Empty(t, out.String())
	assert.Len(t, h.messages(t), 1)
}

func TestStdinSource_LongLineDoesNotStopInput(t *testing.T) {
	h := newHarness(t)
	long := strings.Repeat("x", 2*service.MaxLineBytes)
	input := "web | one\nweb | " + long + "\nweb | three\n"
	var out bytes.Buffer
	src := service.NewStdinSource(h.ingest, strings.NewReader(input), &out, true)

	require.NoError(t, src.Run(context.Background()))
	assert.Equal(t, input, out.String())

	messages := h.messages(t)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0])
	assert.Equal(t, "three", messages[2])
	assert.True(t, strings.HasPrefix(messages[1], "xxx"))
	assert.LessOrEqual(t, len(messages[1]), service.MaxLineBytes)
}

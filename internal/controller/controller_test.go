package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/controller"
	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/parser"
	"log-viewer-backend/internal/service"
	"log-viewer-backend/internal/store"
)

type testServer struct {
	hub    *hub.Hub
	router *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		Hub:  config.HubConfig{SnapshotLimit: 500, SendQueue: 64, WriteTimeout: time.Second, ReadLimit: 4096},
		Sink: config.SinkConfig{BatchSize: 10, MaxBatchWait: time.Second, QueueSize: 10},
	}
}

func newTestServer(t *testing.T, st store.RetentionStore) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	h := hub.New(st, hub.Config{SnapshotLimit: cfg.Hub.SnapshotLimit, SendQueue: cfg.Hub.SendQueue})
	t.Cleanup(h.Shutdown)
	ingest := service.NewIngestService(parser.NewLineParser(), h, service.NewSinkDispatcher(cfg, nil))

	router := gin.New()
	controller.RegisterLogRoutes(router, controller.NewLogController(
		ingest,
		service.NewLogQueryService(h),
		service.NewArchiveQueryService(nil),
	))
	controller.RegisterWSRoutes(router, controller.NewWSController(h, cfg))
	return &testServer{hub: h, router: router}
}

func newSQLiteServer(t *testing.T) *testServer {
	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "logs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newTestServer(t, st)
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestIngestAndQuery(t *testing.T) {
	srv := newSQLiteServer(t)

	rec := srv.do(t, http.MethodPost, "/api/ingest",
		"web | 2024-01-11T16:40:38.944Z INFO Starting server\n\n"+
			"db | 2024-01-11T16:40:39.000Z ERROR connection refused\n"+
			"web | 2024-01-11T16:40:40.000Z WARN slow request\n")
	require.Equal(t, http.StatusOK, rec.Code)
	var ingestResp dto.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingestResp))
	assert.Equal(t, dto.IngestResponse{Accepted: 3}, ingestResp)

	rec = srv.do(t, http.MethodGet, "/api/query?services=web&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queryResp dto.LogQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queryResp))
	assert.Equal(t, int64(2), queryResp.Total)
	require.Len(t, queryResp.Logs, 2)
	assert.Equal(t, "slow request", queryResp.Logs[0].Message)

	rec = srv.do(t, http.MethodGet, "/api/query?search=refused", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queryResp))
	require.Len(t, queryResp.Logs, 1)
	assert.Equal(t, "db", queryResp.Logs[0].Service)

	rec = srv.do(t, http.MethodGet, "/api/services", "")
	assert.JSONEq(t, `{"services":["web","db"]}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/health", "")
	assert.JSONEq(t, `{"status":"ok","backend":"sqlite","records":3,"viewers":0}`, rec.Body.String())
}

func TestQuery_BadParameters(t *testing.T) {
	srv := newSQLiteServer(t)

	tests := []struct {
		name   string
		target string
	}{
		{"Unknown level", "/api/query?levels=LOUD"},
		{"Bad start time", "/api/query?startTime=yesterday"},
		{"Bad limit", "/api/query?limit=ten"},
		{"Reversed range", "/api/query?startTime=2024-01-11T17:00:00Z&endTime=2024-01-11T16:00:00Z"},
		{"Negative offset", "/api/query?offset=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQueryAndStats_UnsupportedOnMemoryBackend(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(10, 0))

	assert.Equal(t, http.StatusNotImplemented, srv.do(t, http.MethodGet, "/api/query", "").Code)
	assert.Equal(t, http.StatusNotImplemented, srv.do(t, http.MethodGet, "/api/stats", "").Code)
}

func TestArchive_Disabled(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(10, 0))

	rec := srv.do(t, http.MethodGet, "/api/archive?startTime=2024-01-11T16:00:00Z&endTime=2024-01-11T17:00:00Z", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/archive", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) hub.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg hub.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_StreamsSnapshotThenLive(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(100, 0))
	srv.do(t, http.MethodPost, "/api/ingest", "web | before connect\n")

	server := httptest.NewServer(srv.router)
	defer server.Close()
	conn := dial(t, server, "/ws")

	init := readMessage(t, conn)
	assert.Equal(t, hub.KindInit, init.Kind)
	require.Len(t, init.Records, 1)
	assert.Equal(t, "before connect", init.Records[0].Message)
	assert.Equal(t, []string{"web"}, init.Services)

	srv.do(t, http.MethodPost, "/api/ingest", "db | after connect\n")
	discovered := readMessage(t, conn)
	assert.Equal(t, hub.KindServiceDiscovered, discovered.Kind)
	assert.Equal(t, "db", discovered.Service)
	live := readMessage(t, conn)
	assert.Equal(t, hub.KindRecord, live.Kind)
	assert.Equal(t, "after connect", live.Record.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteJSON(map[string]string{"kind": "ping"}))
	assert.Equal(t, hub.KindPong, readMessage(t, conn).Kind)

	require.NoError(t, conn.WriteJSON(map[string]string{"kind": "clear"}))
	assert.Equal(t, hub.KindClear, readMessage(t, conn).Kind)
	assert.Equal(t, 0, srv.hub.Store().Len())
}

func TestWebSocket_RootUpgradeAndDisconnect(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(10, 0))
	server := httptest.NewServer(srv.router)
	defer server.Close()

	conn := dial(t, server, "/")
	assert.Equal(t, hub.KindInit, readMessage(t, conn).Kind)
	assert.Equal(t, 1, srv.hub.ViewerCount())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.hub.ViewerCount() == 0 }, 2*time.Second, 20*time.Millisecond)

	// Ingest is unaffected by the departed viewer.
	rec := srv.do(t, http.MethodPost, "/api/ingest", "web | still here\n")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocket_ShutdownClosesConnection(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(10, 0))
	server := httptest.NewServer(srv.router)
	defer server.Close()

	conn := dial(t, server, "/ws")
	readMessage(t, conn)

	srv.hub.Shutdown()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocket_OversizedMessageIsIgnored(t *testing.T) {
	srv := newTestServer(t, store.NewRingStore(10, 0))
	server := httptest.NewServer(srv.router)
	defer server.Close()

	conn := dial(t, server, "/ws")
	assert.Equal(t, hub.KindInit, readMessage(t, conn).Kind)

	noise := `{"kind":"noise","pad":"` + strings.Repeat("a", 5000) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(noise)))
	oversizedClear := `{"kind":"clear","pad":"` + strings.Repeat("b", 5000) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(oversizedClear)))
	require.NoError(t, conn.WriteJSON(map[string]string{"kind": "ping"}))

	assert.Equal(t, hub.KindPong, readMessage(t, conn).Kind)
	assert.Equal(t, 1, srv.hub.ViewerCount())
}

package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/execution-gateway/internal/storage"
	"github.com/mselser95/execution-gateway/internal/testutil"
	"github.com/mselser95/execution-gateway/pkg/config"
	"github.com/mselser95/execution-gateway/pkg/httpserver"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// tickServer answers every subscribe frame with one tick per instrument.
func tickServer(t *testing.T, price float64) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg struct {
				Action      string   `json:"action"`
				Instruments []string `json:"instruments"`
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if json.Unmarshal(data, &msg) != nil || msg.Action != "subscribe" {
				continue
			}

			ticks := make([]types.Tick, 0, len(msg.Instruments))
			for _, key := range msg.Instruments {
				exchange, symbol, _ := strings.Cut(key, ":")
				ticks = append(ticks, types.Tick{
					Symbol:    symbol,
					Exchange:  exchange,
					Price:     price,
					Volume:    1,
					Timestamp: time.Now(),
				})
			}
			out, _ := json.Marshal(ticks)

			mu.Lock()
			err = conn.WriteMessage(websocket.TextMessage, out)
			mu.Unlock()
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, wsURL string) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:                "debug",
		HTTPPort:                "0",
		AuditBufferSize:         64,
		Brokers:                 config.DefaultBrokers(),
		BrokerCallTimeout:       time.Second,
		BrokerProbeInterval:     time.Minute,
		BreakerFailureThreshold: 3,
		BreakerCooldown:         time.Minute,
		FeedWSURL:               wsURL,
		FeedInstruments:         []string{"nse:reliance"},
		WSDialTimeout:           time.Second,
		WSReconnectMaxWait:      time.Second,
		WSMaxFailures:           5,
		WSCooldown:              time.Second,
		FeedStaleAfter:          15 * time.Second,
		FeedCheckInterval:       50 * time.Millisecond,
		FeedTickTTL:             time.Minute,
		CacheNumCounters:        1000,
		CacheMaxCost:            100,
		QueueRegularLimit:       10,
		QueueRegularWindow:      time.Second,
		QueueSmartInterval:      100 * time.Millisecond,
		ExecutionMode:           "DRY_RUN",
		ExecutionEnabled:        true,
		GateFreshness:           5 * time.Second,
		GateDriftBps:            10,
		GateIndexDriftBps:       5,
		GateFeedScope:           "symbol",
		StorageMode:             "sqlite",
		SQLitePath:              filepath.Join(t.TempDir(), "gateway.db"),
	}
}

func submit(t *testing.T, a *App, sub httpserver.OrderSubmission) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(sub)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.httpServer.Handler().ServeHTTP(rec, req)
	return rec
}

func countRecords(t *testing.T, a *App, status types.ExecutionStatus) int {
	t.Helper()

	db, ok := a.storage.(*storage.SQLiteStorage)
	require.True(t, ok)

	n, err := db.CountExecutions(context.Background(), status)
	require.NoError(t, err)
	return n
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(nil, logger, nil)
	require.Error(t, err)

	_, err = New(testConfig(t, "ws://127.0.0.1:1"), nil, nil)
	require.Error(t, err)

	cfg := testConfig(t, "ws://127.0.0.1:1")
	cfg.Brokers = []config.BrokerConfig{{ID: "x", Type: "carrier-pigeon", Priority: 1}}
	_, err = New(cfg, logger, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown broker type")
}

func TestApp_DryRunOrderEndToEnd(t *testing.T) {
	srv := tickServer(t, 2500)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	a, err := New(testConfig(t, wsURL), zaptest.NewLogger(t), &Options{Instruments: []string{"NSE:TCS"}})
	require.NoError(t, err)

	a.Start()
	defer func() {
		require.NoError(t, a.Shutdown())
	}()

	assert.ElementsMatch(t, []string{"NSE:RELIANCE", "NSE:TCS"}, a.stream.Subscriptions())

	require.Eventually(t, func() bool {
		_, _, cached := a.feed.LatestPrice("RELIANCE", "NSE")
		return cached && a.feed.InstrumentStatus("NSE:RELIANCE") == types.FeedHealthy
	}, 5*time.Second, 20*time.Millisecond)

	now := time.Now()
	order := testutil.CreateTestOrder("RELIANCE", 5)
	req := testutil.CreateTestRequest(order, testutil.CreateTestDecision("RELIANCE", 2500, now, time.Minute))

	rec := submit(t, a, httpserver.OrderSubmission{OrderRequest: req})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return countRecords(t, a, types.StatusDryRun) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, countRecords(t, a, types.StatusBlocked))
}

func TestApp_LiveOrderWithoutDecisionIsBlocked(t *testing.T) {
	srv := tickServer(t, 2500)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	cfg := testConfig(t, wsURL)
	cfg.ExecutionMode = "LIVE"

	a, err := New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	a.Start()
	defer func() {
		require.NoError(t, a.Shutdown())
	}()

	req := testutil.CreateTestRequest(testutil.CreateTestOrder("INFY", 1), nil)
	rec := submit(t, a, httpserver.OrderSubmission{OrderRequest: req, Lane: types.LaneSmart})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// Intake streams the instrument named by the order.
	assert.Contains(t, a.stream.Subscriptions(), "NSE:INFY")

	require.Eventually(t, func() bool {
		return countRecords(t, a, types.StatusBlocked) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, countRecords(t, a, types.StatusLive))
}

func TestNormalizeKeys(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "upper-cases", in: []string{"nse:reliance"}, want: []string{"NSE:RELIANCE"}},
		{name: "drops duplicates", in: []string{"NSE:TCS", "nse:tcs"}, want: []string{"NSE:TCS"}},
		{name: "drops malformed", in: []string{"RELIANCE", ":TCS", "NSE:", " "}, want: []string{}},
		{name: "trims", in: []string{" BSE:SENSEX "}, want: []string{"BSE:SENSEX"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeKeys(tt.in))
		})
	}
}

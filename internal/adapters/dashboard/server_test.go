package dashboard_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/adapters/dashboard"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/settings"
	"github.com/alejandrodnm/pulsesurfer/internal/adapters/storage"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	resets atomic.Int32
	err    error
}

func (f *fakeController) RequestReset() error {
	if f.err != nil {
		return f.err
	}
	f.resets.Add(1)
	return nil
}

type fixture struct {
	srv      *httptest.Server
	dash     *dashboard.Server
	settings *settings.FileStore
	journal  *storage.SQLiteJournal
	control  *fakeController
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()
	store, err := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"), domain.DefaultSettings())
	require.NoError(t, err)
	journal, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	ctrl := &fakeController{}
	dash := dashboard.New(store, journal, ctrl, dashboard.Config{AdminPassword: password})
	srv := httptest.NewServer(dash.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, dash: dash, settings: store, journal: journal, control: ctrl}
}

func (f *fixture) post(t *testing.T, path, body, password string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if password != "" {
		req.Header.Set(dashboard.PasswordHeader, password)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestGetParams(t *testing.T) {
	f := newFixture(t, "")

	var got domain.Settings
	getJSON(t, f.srv.URL+"/api/params", &got)
	assert.Equal(t, domain.DefaultBoundaries(), got.Boundaries)
	assert.Equal(t, 0.03, got.Multipliers[domain.ExtremeFear])
	assert.Equal(t, 0.0004, got.TipCap)
}

func TestPostParams_PartialUpdate(t *testing.T) {
	f := newFixture(t, "")

	resp := f.post(t, "/api/params", `{"monitor_mode": true, "sentiment_multipliers": {"FEAR": 0.02}}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cur := f.settings.Current()
	assert.True(t, cur.MonitorMode)
	assert.Equal(t, 0.02, cur.Multipliers[domain.Fear])
	assert.Equal(t, 0.03, cur.Multipliers[domain.ExtremeFear], "untouched keys keep their value")
	assert.Equal(t, domain.DefaultBoundaries(), cur.Boundaries)
}

func TestPostParams_Rejected(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"monitor_mode": `},
		{"boundaries not increasing", `{"sentiment_boundaries": {"extreme_fear": 50, "fear": 40, "greed": 60, "extreme_greed": 80}}`},
		{"multiplier above one", `{"sentiment_multipliers": {"GREED": 1.5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/params", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Equal(t, domain.DefaultBoundaries(), f.settings.Current().Boundaries)
}

func TestAdminPassword(t *testing.T) {
	f := newFixture(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, f.post(t, "/api/restart", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.post(t, "/api/restart", "", "wrong").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.post(t, "/api/params", `{"monitor_mode": true}`, "").StatusCode)
	assert.Zero(t, f.control.resets.Load())
	assert.False(t, f.settings.Current().MonitorMode)

	assert.Equal(t, http.StatusAccepted, f.post(t, "/api/restart", "", "s3cret").StatusCode)
	assert.Equal(t, int32(1), f.control.resets.Load())

	// GET no requiere contraseña
	var got domain.Settings
	getJSON(t, f.srv.URL+"/api/params", &got)
}

func TestRestart_QueueFull(t *testing.T) {
	f := newFixture(t, "")
	f.control.err = errors.New("queue full")

	resp := f.post(t, "/api/restart", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRecentTrades_NewestFirstLimited(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 9; i++ {
		require.NoError(t, f.journal.SaveTrade(ctx, domain.Trade{
			ID:           string(rune('a' + i)),
			Direction:    domain.Buy,
			AssetAmount:  0.1,
			StableAmount: 15,
			Price:        150,
			Sentiment:    domain.Fear,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	var trades []domain.Trade
	getJSON(t, f.srv.URL+"/api/recent-trades", &trades)
	require.Len(t, trades, domain.RecentTradesLimit)
	assert.Equal(t, "i", trades[0].ID)
	assert.Equal(t, "c", trades[6].ID)
}

func TestInitialData(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.journal.SaveSample(ctx, domain.Sample{
		Timestamp: time.Now().UTC(), Price: 150, Index: 35, Sentiment: domain.Fear,
	}))

	var before struct {
		Summary  *domain.Summary `json:"summary"`
		Settings domain.Settings `json:"settings"`
		Samples  []domain.Sample `json:"samples"`
	}
	getJSON(t, f.srv.URL+"/api/initial-data", &before)
	assert.Nil(t, before.Summary)
	assert.Len(t, before.Samples, 1)
	assert.Equal(t, 0.0004, before.Settings.TipCap)

	require.NoError(t, f.dash.Publish(ctx, domain.Summary{Price: 151, Cycles: 4}))

	var after struct {
		Summary *domain.Summary `json:"summary"`
	}
	getJSON(t, f.srv.URL+"/api/initial-data", &after)
	require.NotNil(t, after.Summary)
	assert.Equal(t, 151.0, after.Summary.Price)
	assert.Equal(t, 4, after.Summary.Cycles)
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg wsMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestWebsocket_PushesSummaries(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.dash.Publish(ctx, domain.Summary{Cycles: 1}))

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, "summary", hello.Type)
	var s domain.Summary
	require.NoError(t, json.Unmarshal(hello.Data, &s))
	assert.Equal(t, 1, s.Cycles)

	require.NoError(t, f.dash.Publish(ctx, domain.Summary{Cycles: 2}))
	msg := readMessage(t, conn)
	require.NoError(t, json.Unmarshal(msg.Data, &s))
	assert.Equal(t, 2, s.Cycles)

	f.dash.BroadcastSettings(domain.DefaultSettings())
	msg = readMessage(t, conn)
	assert.Equal(t, "settings", msg.Type)
	assert.True(t, bytes.Contains(msg.Data, []byte(`"tip_cap"`)))
}

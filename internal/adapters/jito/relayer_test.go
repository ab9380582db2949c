package jito_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/adapters/jito"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/retry"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func writeResult(t *testing.T, w http.ResponseWriter, id json.RawMessage, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}))
}

func newTestRelayer(t *testing.T, srv *httptest.Server) *jito.Relayer {
	t.Helper()
	p := retry.Exponential(4, time.Millisecond, 5*time.Millisecond, 0)
	r, err := jito.NewRelayer(srv.URL, &p)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func testBundle() domain.SignedBundle {
	return domain.SignedBundle{Transactions: [][]byte{{1, 2, 3}, {4, 5, 6}}}
}

func TestSendBundle_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sendBundle", req.Method)
		require.Len(t, req.Params, 1)

		var txs []string
		require.NoError(t, json.Unmarshal(req.Params[0], &txs))
		assert.Equal(t, []string{base58.Encode([]byte{1, 2, 3}), base58.Encode([]byte{4, 5, 6})}, txs)

		writeResult(t, w, req.ID, "b1d2c3")
	}))
	defer srv.Close()

	id, err := newTestRelayer(t, srv).SendBundle(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, "b1d2c3", id)
}

func TestSendBundle_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(t, w, req.ID, "landed-later")
	}))
	defer srv.Close()

	id, err := newTestRelayer(t, srv).SendBundle(context.Background(), testBundle())
	require.NoError(t, err)
	assert.Equal(t, "landed-later", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendBundle_BadRequestIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bundle contains an already processed transaction`))
	}))
	defer srv.Close()

	_, err := newTestRelayer(t, srv).SendBundle(context.Background(), testBundle())
	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendBundle_ExhaustsOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestRelayer(t, srv).SendBundle(context.Background(), testBundle())
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(4), calls.Load())
}

func TestSendBundle_Empty(t *testing.T) {
	r, err := jito.NewRelayer("http://127.0.0.1:1", nil)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.SendBundle(context.Background(), domain.SignedBundle{})
	assert.Error(t, err)
}

func TestBundleStatus(t *testing.T) {
	cases := []struct {
		name   string
		result any
		want   domain.BundleStatus
	}{
		{"landed", map[string]any{"value": []any{map[string]any{"bundle_id": "x", "status": "Landed", "landed_slot": 123}}}, domain.BundleLanded},
		{"failed", map[string]any{"value": []any{map[string]any{"bundle_id": "x", "status": "Failed"}}}, domain.BundleFailed},
		{"pending", map[string]any{"value": []any{map[string]any{"bundle_id": "x", "status": "Pending"}}}, domain.BundlePending},
		{"unknown", map[string]any{"value": []any{}}, domain.BundleInvalid},
		{"null entry", map[string]any{"value": []any{nil}}, domain.BundleInvalid},
		{"weird", map[string]any{"value": []any{map[string]any{"status": "Exploded"}}}, domain.BundleInvalid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req rpcRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "getInflightBundleStatuses", req.Method)
				var ids []string
				require.NoError(t, json.Unmarshal(req.Params[0], &ids))
				assert.Equal(t, []string{"x"}, ids)
				writeResult(t, w, req.ID, c.result)
			}))
			defer srv.Close()

			st, err := newTestRelayer(t, srv).BundleStatus(context.Background(), "x")
			require.NoError(t, err)
			assert.Equal(t, c.want, st)
		})
	}
}

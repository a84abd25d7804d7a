package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now atomic.Int64 }

func (c *fakeClock) NowUnixNano() int64     { return c.now.Load() }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func newShardServer(t *testing.T, capacity int, defaultTTL time.Duration, clock store.Clock) (*httptest.Server, *logs.Logger) {
	t.Helper()
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(50, logs.DEBUG)
	st, err := store.NewStore(store.Options{Capacity: capacity, DefaultTTL: defaultTTL, Clock: clock}, reg)
	require.NoError(t, err)

	srv := NewServer(":0", logger)
	RegisterShardRoutes(srv.Echo(), NewShardHandler(st, reg, logger))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, logger
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

/* ---------------- POST /cache ---------------- */

func TestShardPutKey(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	t.Run("ValidRequest", func(t *testing.T) {
		resp := post(t, server.URL+"/cache/key1", `{"value":"hello"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decode(t, resp)["ok"])
	})

	t.Run("WithTTL", func(t *testing.T) {
		resp := post(t, server.URL+"/cache/ttl-key", `{"value":"expiring","ttl":60}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		resp := post(t, server.URL+"/cache/key1", `{bad-json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode(t, resp)["error"], "invalid json body")
	})

	t.Run("MissingValue", func(t *testing.T) {
		resp := post(t, server.URL+"/cache/key1", `{"ttl":5}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ResponseCarriesRequestID", func(t *testing.T) {
		resp := post(t, server.URL+"/cache/key1", `{"value":1}`)
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	})
}

/* ---------------- GET /cache ---------------- */

func TestShardGetKey(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	post(t, server.URL+"/cache/active-key", `{"value":{"name":"found-me","n":[1,2]}}`)

	t.Run("ValidKey", func(t *testing.T) {
		resp := get(t, server.URL+"/cache/active-key")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"value":{"name":"found-me","n":[1,2]}}`, string(body))
	})

	t.Run("KeyNotFound", func(t *testing.T) {
		resp := get(t, server.URL+"/cache/missing-key")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"value":null}`, string(body))
	})
}

func TestShardTTL(t *testing.T) {
	clock := &fakeClock{}
	clock.now.Store(time.Now().UnixNano())
	server, _ := newShardServer(t, 10, 300*time.Second, clock)

	post(t, server.URL+"/cache/short", `{"value":"x","ttl":1}`)
	post(t, server.URL+"/cache/default", `{"value":"y"}`)
	post(t, server.URL+"/cache/forever", `{"value":"z","ttl":0}`)

	clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusNotFound, get(t, server.URL+"/cache/short").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/cache/default").StatusCode)

	clock.Advance(time.Hour)
	assert.Equal(t, http.StatusNotFound, get(t, server.URL+"/cache/default").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/cache/forever").StatusCode)
}

func TestShardCapacity(t *testing.T) {
	server, _ := newShardServer(t, 2, 0, nil)

	post(t, server.URL+"/cache/a", `{"value":1}`)
	post(t, server.URL+"/cache/b", `{"value":2}`)
	get(t, server.URL+"/cache/a")
	post(t, server.URL+"/cache/c", `{"value":3}`)

	assert.Equal(t, http.StatusNotFound, get(t, server.URL+"/cache/b").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/cache/a").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/cache/c").StatusCode)
}

/* ---------------- DELETE /cache ---------------- */

func TestShardDeleteKey(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	post(t, server.URL+"/cache/to-delete", `{"value":"x"}`)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/cache/to-delete", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, get(t, server.URL+"/cache/to-delete").StatusCode)
}

/* ---------------- GET /admin/keys ---------------- */

func TestShardListKeys(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	t.Run("EmptyStore", func(t *testing.T) {
		resp := get(t, server.URL+"/admin/keys")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode(t, resp), 0)
	})

	t.Run("WithData", func(t *testing.T) {
		post(t, server.URL+"/cache/a", `{"value":"1"}`)

		data := decode(t, get(t, server.URL+"/admin/keys"))
		assert.Equal(t, "1", data["a"])
	})
}

/* ---------------- GET /metrics ---------------- */

func TestShardMetrics(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)
	post(t, server.URL+"/cache/a", `{"value":"1"}`)
	get(t, server.URL+"/cache/a")

	resp := get(t, server.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shardkv_cache_sets_total 1")
	assert.Contains(t, string(body), "shardkv_cache_hits_total 1")
}

/* ---------------- GET /health ---------------- */

func TestShardHealth(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	resp := get(t, server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", decode(t, resp)["status"])
}

func TestShardReport(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	report := decode(t, get(t, server.URL+"/admin/report"))

	assert.Equal(t, "OK", report["overall_status"])
	assert.Contains(t, report, "summary")
	assert.Contains(t, report, "signals")
	assert.Contains(t, report, "recommendations")
}

/* ---------------- Route validation ---------------- */

func TestShardRouteValidation(t *testing.T) {
	server, _ := newShardServer(t, 10, 0, nil)

	t.Run("MethodNotAllowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, server.URL+"/cache/key1", bytes.NewBufferString(`{"value":1}`))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("UnknownRoute", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, server.URL+"/kv/key1").StatusCode)
	})
}

package transport

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeShard is a minimal in-memory shard speaking the cache protocol.
type fakeShard struct {
	mu      sync.Mutex
	data    map[string]json.RawMessage
	lastTTL *float64
}

func newFakeShard(t *testing.T) (*fakeShard, *httptest.Server) {
	t.Helper()
	fs := &fakeShard{data: make(map[string]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache/{key}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		v, ok := fs.data[r.PathValue("key")]
		fs.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, GetResponse{Value: json.RawMessage("null")})
			return
		}
		writeJSON(w, http.StatusOK, GetResponse{Value: v})
	})
	mux.HandleFunc("POST /cache/{key}", func(w http.ResponseWriter, r *http.Request) {
		var req PutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		fs.mu.Lock()
		fs.data[r.PathValue("key")] = req.Value
		fs.lastTTL = req.TTL
		fs.mu.Unlock()
		writeJSON(w, http.StatusOK, PutResponse{OK: true})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: StatusUp})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func TestClient_PutGetRoundTrip(t *testing.T) {
	_, srv := newFakeShard(t)
	c := NewClient()
	ctx := context.Background()

	t.Run("missing key is not an error", func(t *testing.T) {
		v, found, err := c.Get(ctx, srv.URL, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
	})

	t.Run("arbitrary json values round-trip", func(t *testing.T) {
		for key, raw := range map[string]string{
			"str":    `"value1"`,
			"num":    `42`,
			"obj":    `{"a":[1,2,3]}`,
			"spaced": `true`,
		} {
			require.NoError(t, c.Put(ctx, srv.URL, key, json.RawMessage(raw)))

			v, found, err := c.Get(ctx, srv.URL, key)
			require.NoError(t, err)
			require.True(t, found)
			assert.JSONEq(t, raw, string(v))
		}
	})

	t.Run("keys are path-escaped", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, srv.URL, "user 1", json.RawMessage(`1`)))
		_, found, err := c.Get(ctx, srv.URL, "user 1")
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestClient_PutTTL(t *testing.T) {
	fs, srv := newFakeShard(t)
	c := NewClient()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, srv.URL, "k", json.RawMessage(`1`)))
	assert.Nil(t, fs.lastTTL, "ttl omitted when not requested")

	require.NoError(t, c.Put(ctx, srv.URL, "k", json.RawMessage(`1`), WithTTL(1500*time.Millisecond)))
	require.NotNil(t, fs.lastTTL)
	assert.InDelta(t, 1.5, *fs.lastTTL, 1e-9)

	require.NoError(t, c.Put(ctx, srv.URL, "k", json.RawMessage(`1`), NoExpiry()))
	require.NotNil(t, fs.lastTTL)
	assert.Equal(t, 0.0, *fs.lastTTL)
}

func TestClient_Unreachable(t *testing.T) {
	ctx := context.Background()

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := NewClient(WithTimeout(200 * time.Millisecond))

		_, _, err := c.Get(ctx, url, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
		assert.ErrorIs(t, c.Put(ctx, url, "k", json.RawMessage(`1`)), ErrShardUnreachable)
		assert.ErrorIs(t, c.Health(ctx, url), ErrShardUnreachable)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient()
		_, found, err := c.Get(ctx, srv.URL, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
		assert.False(t, found)
		assert.ErrorIs(t, c.Put(ctx, srv.URL, "k", json.RawMessage(`1`)), ErrShardUnreachable)
		assert.ErrorIs(t, c.Health(ctx, srv.URL), ErrShardUnreachable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		c := NewClient()
		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, _, err := c.Get(tctx, srv.URL, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
	})

	t.Run("404 from a non-shard server", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, found, err := NewClient().Get(ctx, srv.URL, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
		assert.False(t, found)
	})

	t.Run("404 with a foreign json body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}))
		defer srv.Close()

		_, _, err := NewClient().Get(ctx, srv.URL, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{not json`))
		}))
		defer srv.Close()

		_, _, err := NewClient().Get(ctx, srv.URL, "k")
		assert.ErrorIs(t, err, ErrShardUnreachable)
	})
}

func TestClient_Health(t *testing.T) {
	_, srv := newFakeShard(t)
	assert.NoError(t, NewClient().Health(context.Background(), srv.URL+"/"))
}

func TestNewPutRequest(t *testing.T) {
	req := NewPutRequest(json.RawMessage(`"v"`), WithTTL(-time.Second))
	require.NotNil(t, req.TTL)
	assert.Equal(t, 0.0, *req.TTL)

	assert.Equal(t, 2*time.Second, TTLSeconds(2))
	assert.Equal(t, 500*time.Millisecond, TTLSeconds(0.5))
	assert.Equal(t, time.Duration(math.MaxInt64), TTLSeconds(9e12))
	assert.Equal(t, time.Duration(math.MinInt64), TTLSeconds(-9e12))
}

package api

import (
	"encoding/json"
	"net/http"

	"sharded-cache/internal/diagnostics"
	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/store"
	"sharded-cache/internal/transport"

	"github.com/labstack/echo/v4"
)

// ShardHandler serves one cache shard.
type ShardHandler struct {
	store    *store.Store
	metrics  *metrics.Registry
	analyzer *diagnostics.HealthAnalyzer
}

// NewShardHandler creates the handler set for a shard server.
func NewShardHandler(
	st *store.Store,
	reg *metrics.Registry,
	logger *logs.Logger,
) *ShardHandler {
	return &ShardHandler{
		store:    st,
		metrics:  reg,
		analyzer: diagnostics.NewHealthAnalyzer(reg, logger),
	}
}

/* ---------------- POST /cache/:key ---------------- */

func (h *ShardHandler) PutKey(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing key in URL")
	}

	var req transport.PutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	value := []byte(req.Value)
	if req.TTL == nil {
		h.store.Put(key, value)
	} else {
		h.store.PutWithTTL(key, value, transport.TTLSeconds(*req.TTL))
	}

	return c.JSON(http.StatusOK, transport.PutResponse{OK: true})
}

/* ---------------- GET /cache/:key ---------------- */

func (h *ShardHandler) GetKey(c echo.Context) error {
	value, ok := h.store.Get(c.Param("key"))
	if !ok {
		return c.JSON(http.StatusNotFound, transport.GetResponse{Value: json.RawMessage("null")})
	}
	return c.JSON(http.StatusOK, transport.GetResponse{Value: value})
}

/* ---------------- DELETE /cache/:key ---------------- */

func (h *ShardHandler) DeleteKey(c echo.Context) error {
	h.store.Delete(c.Param("key"))
	return c.NoContent(http.StatusNoContent)
}

/* ---------------- GET /admin/keys ---------------- */

func (h *ShardHandler) ListKeys(c echo.Context) error {
	entries := h.store.List()

	resp := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		resp[k] = v.Value
	}
	return c.JSON(http.StatusOK, resp)
}

/* ---------------- GET /admin/report ---------------- */

func (h *ShardHandler) GetReport(c echo.Context) error {
	return c.JSON(http.StatusOK, h.analyzer.Analyze())
}

/* ---------------- GET /health ---------------- */

func (h *ShardHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, transport.HealthResponse{Status: transport.StatusUp})
}

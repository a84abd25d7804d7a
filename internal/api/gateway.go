package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sharded-cache/internal/diagnostics"
	"sharded-cache/internal/logs"
	"sharded-cache/internal/metrics"
	"sharded-cache/internal/peers"
	"sharded-cache/internal/replication"
	"sharded-cache/internal/router"
	"sharded-cache/internal/transport"

	"github.com/labstack/echo/v4"
)

// GatewayHandler is the client-side entry point: reads go through the
// router to the owning shard, writes through the replication coordinator.
type GatewayHandler struct {
	router      *router.Router
	coordinator *replication.Coordinator
	table       *peers.Table
	analyzer    *diagnostics.HealthAnalyzer
}

func NewGatewayHandler(
	rt *router.Router,
	co *replication.Coordinator,
	table *peers.Table,
	reg *metrics.Registry,
	logger *logs.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		router:      rt,
		coordinator: co,
		table:       table,
		analyzer:    diagnostics.NewHealthAnalyzer(reg, logger),
	}
}

type replicatedPutResponse struct {
	OK       bool     `json:"ok"`
	Replicas []string `json:"replicas"`
}

type routeResponse struct {
	Key      string   `json:"key"`
	Owner    string   `json:"owner"`
	Endpoint string   `json:"endpoint"`
	Replicas []string `json:"replicas"`
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, router.ErrUnroutableKey), errors.Is(err, replication.ErrStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, transport.ErrShardUnreachable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}

/* ---------------- GET /cache/:key ---------------- */

func (h *GatewayHandler) GetKey(c echo.Context) error {
	value, found, err := h.router.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return gatewayError(err)
	}
	if !found {
		return c.JSON(http.StatusNotFound, transport.GetResponse{Value: json.RawMessage("null")})
	}
	return c.JSON(http.StatusOK, transport.GetResponse{Value: value})
}

/* ---------------- POST /cache/:key ---------------- */

func (h *GatewayHandler) PutKey(c echo.Context) error {
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

	var opts []transport.PutOption
	if req.TTL != nil {
		opts = append(opts, transport.WithTTL(transport.TTLSeconds(*req.TTL)))
	}

	replicas, err := h.coordinator.Put(c.Request().Context(), key, req.Value, opts...)
	if err != nil {
		return gatewayError(err)
	}
	return c.JSON(http.StatusAccepted, replicatedPutResponse{OK: true, Replicas: replicas})
}

/* ---------------- GET /admin/route/:key ---------------- */

func (h *GatewayHandler) GetRoute(c echo.Context) error {
	key := c.Param("key")

	target, err := h.router.Resolve(key)
	if err != nil {
		return gatewayError(err)
	}
	replicas, err := h.coordinator.ReplicaSet(key)
	if err != nil {
		return gatewayError(err)
	}
	return c.JSON(http.StatusOK, routeResponse{
		Key:      key,
		Owner:    target.NodeID,
		Endpoint: target.Endpoint,
		Replicas: replicas,
	})
}

/* ---------------- GET /admin/nodes ---------------- */

func (h *GatewayHandler) GetNodes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.table.Snapshot())
}

/* ---------------- GET /admin/report ---------------- */

func (h *GatewayHandler) GetReport(c echo.Context) error {
	return c.JSON(http.StatusOK, h.analyzer.Analyze())
}

/* ---------------- GET /health ---------------- */

func (h *GatewayHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, transport.HealthResponse{Status: transport.StatusUp})
}

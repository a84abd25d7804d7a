package api

import (
	"sharded-cache/internal/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func metricsHandler(reg *metrics.Registry) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
}

// RegisterShardRoutes mounts the shard protocol and its admin endpoints.
func RegisterShardRoutes(e *echo.Echo, h *ShardHandler) {
	// Cache APIs
	e.GET("/cache/:key", h.GetKey)
	e.POST("/cache/:key", h.PutKey)
	e.DELETE("/cache/:key", h.DeleteKey)

	// Admin APIs
	e.GET("/admin/keys", h.ListKeys)
	e.GET("/admin/report", h.GetReport)

	// Observability APIs
	e.GET("/metrics", metricsHandler(h.metrics))
	e.GET("/health", h.GetHealth)
}

// RegisterGatewayRoutes mounts the client-facing cluster API.
func RegisterGatewayRoutes(e *echo.Echo, h *GatewayHandler, reg *metrics.Registry) {
	e.GET("/cache/:key", h.GetKey)
	e.POST("/cache/:key", h.PutKey)

	e.GET("/admin/route/:key", h.GetRoute)
	e.GET("/admin/nodes", h.GetNodes)
	e.GET("/admin/report", h.GetReport)

	e.GET("/metrics", metricsHandler(reg))
	e.GET("/health", h.GetHealth)
}

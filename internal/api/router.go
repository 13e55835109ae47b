package api

import (
	"github.com/gin-gonic/gin"

	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/httpmw"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/common/metrics"
)

// NewRouter assembles the Gin engine: middleware chain, REST routes, the
// WebSocket stream endpoint, and the operational /health, /ready, /metrics
// routes. streamPrefix must match cfg.StreamPathPrefix passed to Handlers.
func NewRouter(h *Handlers, auth config.AuthConfig, metricsCfg config.MetricsConfig, streamPrefix string, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(httpmw.Recovery(log))
	r.Use(httpmw.RequestLogger(log))
	r.Use(httpmw.CORS())
	r.Use(metrics.GinMiddleware())
	r.Use(httpmw.ErrorHandler(log))

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	if metricsCfg.Enabled {
		path := metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api/v1")
	if auth.Enabled {
		api.Use(httpmw.BearerAuth(auth.BearerToken))
	}
	{
		api.POST("/tasks", h.SubmitTask)
		api.GET("/tasks/:task_id", h.TaskStatus)
		api.POST("/tasks/:task_id/interrupt", h.InterruptTask)
		api.GET("/sessions", h.ListSessions)
		api.DELETE("/sessions/:session_id", h.DeleteSession)
	}

	stream := r.Group(streamPrefix)
	if auth.Enabled {
		stream.Use(httpmw.BearerAuth(auth.BearerToken))
	}
	stream.GET("/tasks/:task_id", h.StreamTask)

	return r
}

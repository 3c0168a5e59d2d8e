package controller

import (
	"net/http"

	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/web/cache"

	"github.com/gin-gonic/gin"
)

// ServerState reports whether the server is accepting work.
type ServerState interface {
	IsRunning() bool
}

// HealthController answers load balancer health checks.
type HealthController struct {
	server ServerState
	redis  *cache.Redis
}

// NewHealthController registers /healthz.
func NewHealthController(g *gin.RouterGroup, server ServerState, redis *cache.Redis) *HealthController {
	a := &HealthController{server: server, redis: redis}
	g.GET("/healthz", a.health)
	return a
}

// health reports 503 while the server shuts down or the session store is unreachable.
func (a *HealthController) health(c *gin.Context) {
	sessions := "external"
	if a.redis.IsEmbedded() {
		sessions = "embedded"
	}

	if !a.server.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopping", "sessions": sessions})
		return
	}
	if err := a.redis.Client().Ping(c.Request.Context()).Err(); err != nil {
		logger.Warning("health check: session store unreachable: ", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "sessions": sessions})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions})
}

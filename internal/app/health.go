package app

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imsunorg/blog-front/internal/pkg/response"
)

var processStart = time.Now()

// healthz reports liveness plus basic runtime facts for probes.
func (a *App) healthz(c *gin.Context) {
	response.OK(c, gin.H{
		"status":   "ok",
		"uptime":   time.Since(processStart).Round(time.Second).String(),
		"upstream": a.cfg.Upstream.BaseURL,
		"cache":    a.redis != nil,
	})
}

package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-admin/internal/connectivity"
)

// Reporter runs the readiness checks.
type Reporter interface {
	Report(ctx context.Context) connectivity.Report
}

type Handler struct {
	monitor Reporter
}

func NewHandler(monitor Reporter) *Handler {
	return &Handler{monitor: monitor}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now().UTC(),
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	report := h.monitor.Report(c.Request.Context())
	if !report.Online {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"checks": report.Checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"checks": report.Checks,
	})
}

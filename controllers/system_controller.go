package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is anything the health endpoint should check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type SystemController struct {
	appName string
	version string
	checks  map[string]HealthChecker
	started time.Time
}

func NewSystemController(appName, version string, checks map[string]HealthChecker) *SystemController {
	return &SystemController{
		appName: appName,
		version: version,
		checks:  checks,
		started: time.Now(),
	}
}

// Health checks the database and artifact storage
func (sc *SystemController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	components := gin.H{}
	for name, check := range sc.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"uptime":     time.Since(sc.started).Round(time.Second).String(),
		"timestamp":  time.Now(),
	})
}

// Version reports the build
func (sc *SystemController) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    sc.appName,
		"version": sc.version,
	})
}

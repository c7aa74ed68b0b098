package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/config"
)

// HealthCheckResponse represents the response from the health check endpoint
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env"`
}

// ReadinessCheckResponse represents the response from the readiness check endpoint
type ReadinessCheckResponse struct {
	Ready     bool             `json:"ready"`
	Checks    []ReadinessCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// ReadinessCheck represents a single readiness check
type ReadinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok" or "fail"
	Error  string `json:"error,omitempty"`
}

// indexReader reads the index file for the readiness probe.
type indexReader interface {
	ReadFile(ctx context.Context, path, ref string) ([]byte, error)
}

// readinessTimeout bounds the repository probe.
const readinessTimeout = 5 * time.Second

// healthCheckHandler returns the liveness probe handler
func healthCheckHandler(cfg *config.Config, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthCheckResponse{
			Status:    "healthy",
			Service:   "prompt-template-server",
			Version:   "1.0.0",
			Uptime:    time.Since(startTime).String(),
			Timestamp: time.Now(),
			Env:       cfg.Server.Env,
		})
	}
}

// readinessCheckHandler returns the readiness probe handler
// 读取索引文件验证仓库可达与凭据有效；索引不存在视为就绪（空仓库）
func readinessCheckHandler(cfg *config.Config, repo indexReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		check := ReadinessCheck{Name: "bitbucket_repository", Status: "ok"}
		if _, err := repo.ReadFile(ctx, cfg.Bitbucket.IndexPath, cfg.Bitbucket.DefaultBranch); err != nil && !bitbucket.IsNotFound(err) {
			check.Status = "fail"
			check.Error = err.Error()
		}

		response := ReadinessCheckResponse{
			Ready:     check.Status == "ok",
			Checks:    []ReadinessCheck{check},
			Timestamp: time.Now(),
		}
		httpStatus := http.StatusOK
		if !response.Ready {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, response)
	}
}

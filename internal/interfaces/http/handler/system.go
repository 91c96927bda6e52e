package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency probed by Health
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the liveness endpoints
type SystemHandler struct {
	BaseHandler
	name, version string
	started       time.Time
	checks        map[string]Pinger
}

// NewSystemHandler reports name and version. Each entry of checks is probed
// on every health request and reported under its key.
func NewSystemHandler(name, version string, checks map[string]Pinger) *SystemHandler {
	return &SystemHandler{name: name, version: version, started: time.Now(), checks: checks}
}

// HealthResponse represents the health check response
// @name HandlerHealthResponse
type HealthResponse struct {
	Status    string            `json:"status" example:"ok"`
	Name      string            `json:"name" example:"escrow-engine"`
	Version   string            `json:"version" example:"1.0.0"`
	GoVersion string            `json:"go_version" example:"go1.25.5"`
	Uptime    string            `json:"uptime" example:"1h30m45s"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Reports service liveness and the state of its dependencies
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Failure      503 {object} APIResponse[HealthResponse]
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks:    h.probe(c.Request.Context()),
	}
	code := http.StatusOK
	for _, state := range resp.Checks {
		if state != "up" {
			resp.Status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, dto.Response{Success: code == http.StatusOK, Data: resp})
}

// probe pings every dependency at once under healthCheckTimeout. A slow
// database does not delay the redis result.
func (h *SystemHandler) probe(ctx context.Context) map[string]string {
	if len(h.checks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		states = make(map[string]string, len(h.checks))
		g      errgroup.Group
	)
	for name, check := range h.checks {
		g.Go(func() error {
			state := "up"
			if err := check.Ping(ctx); err != nil {
				logger.L(ctx).Warn("Health check failed", zap.String("check", name), zap.Error(err))
				state = "down"
			}
			mu.Lock()
			states[name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return states
}

// PingResponse represents the ping response
// @name HandlerPingResponse
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Description  Simple ping endpoint to check if the API is responsive
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

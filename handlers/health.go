package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusWarning   = "warning"
)

// memoryWarnPercent marks the memory check as a warning when system memory
// use crosses it. A warning does not fail the health check.
const memoryWarnPercent = 90.0

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db          Pinger
	environment string
	startedAt   time.Time
	log         *zap.Logger
}

func NewHealthHandler(db Pinger, environment string, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		environment: environment,
		startedAt:   time.Now(),
		log:         log,
	}
}

type HealthResponse struct {
	Status      string       `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	Uptime      float64      `json:"uptime"`
	Environment string       `json:"environment"`
	Checks      HealthChecks `json:"checks"`
}

type HealthChecks struct {
	Database DatabaseCheck `json:"database"`
	Memory   MemoryCheck   `json:"memory"`
}

type DatabaseCheck struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

type MemoryCheck struct {
	Status            string  `json:"status"`
	HeapAlloc         uint64  `json:"heapAlloc"`
	HeapSys           uint64  `json:"heapSys"`
	RSS               uint64  `json:"rss,omitempty"`
	SystemUsedPercent float64 `json:"systemUsedPercent,omitempty"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:      StatusHealthy,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startedAt).Seconds(),
		Environment: h.environment,
		Checks: HealthChecks{
			Database: h.checkDatabase(c.Request.Context()),
			Memory:   h.checkMemory(),
		},
	}

	code := http.StatusOK
	if resp.Checks.Database.Status != StatusHealthy {
		resp.Status = StatusUnhealthy
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, resp)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) DatabaseCheck {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	check := DatabaseCheck{
		Status:       StatusHealthy,
		ResponseTime: time.Since(start).Milliseconds(),
	}
	if err != nil {
		h.log.Warn("health check: database ping failed", zap.Error(err))
		check.Status = StatusUnhealthy
		check.Error = err.Error()
	}
	return check
}

func (h *HealthHandler) checkMemory() MemoryCheck {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	check := MemoryCheck{
		Status:    StatusHealthy,
		HeapAlloc: ms.HeapAlloc,
		HeapSys:   ms.HeapSys,
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			check.RSS = info.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		check.SystemUsedPercent = vm.UsedPercent
		if vm.UsedPercent >= memoryWarnPercent {
			check.Status = StatusWarning
		}
	}
	return check
}

package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"
)

type processStats struct {
	RSSBytes      uint64  `json:"rssBytes"`
	CPUPercent    float64 `json:"cpuPercent"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
}

type healthStatus struct {
	Status   string       `json:"status"`
	Database string       `json:"database"`
	Process  processStats `json:"process"`
	Error    string       `json:"error,omitempty"`
}

type healthChecker struct {
	db        *gorm.DB
	startedAt time.Time
}

func newHealthChecker(db *gorm.DB) *healthChecker {
	return &healthChecker{db: db, startedAt: time.Now()}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	status := h.health.check()
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (hc *healthChecker) check() healthStatus {
	status := healthStatus{
		Status:   "healthy",
		Database: "ok",
		Process:  hc.processStats(),
	}

	sqlDB, err := hc.db.DB()
	if err != nil {
		status.Status = "unhealthy"
		status.Database = "error"
		status.Error = err.Error()
		return status
	}
	if err := sqlDB.Ping(); err != nil {
		status.Status = "unhealthy"
		status.Database = "unreachable"
		status.Error = err.Error()
	}
	return status
}

// processStats is diagnostic only; collection failures leave zero values
// rather than failing the probe.
func (hc *healthChecker) processStats() processStats {
	stats := processStats{
		UptimeSeconds: int64(time.Since(hc.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		stats.RSSBytes = memInfo.RSS
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpuPercent
	}
	return stats
}

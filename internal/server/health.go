package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is the health endpoint payload. Checks carries one line per
// subsystem: breaker states, cache reachability, system load.
type HealthResponse struct {
	Healthy      bool              `json:"healthy"`
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	UptimeSecs   float64           `json:"uptime_seconds"`
	CPUPercent   float64           `json:"cpu_percent"`
	RAMPercent   float64           `json:"ram_percent"`
	Checks       map[string]string `json:"checks"`
	CacheEntries int               `json:"cache_entries"`
}

// handleHealth reports process health: system load, breaker states, and cache
// size. Status degrades to "degraded" when any breaker is OPEN.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Healthy:    true,
		Status:     "healthy",
		Version:    Version,
		UptimeSecs: time.Since(s.startupTime).Seconds(),
		Checks:     make(map[string]string),
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		resp.RAMPercent = memStat.UsedPercent
		resp.Checks["memory"] = fmt.Sprintf("%.1f%% used", memStat.UsedPercent)
	}

	if s.breakers != nil {
		for name, state := range s.breakers.States() {
			resp.Checks["breaker:"+name] = state
			if state == "OPEN" {
				resp.Status = "degraded"
			}
		}
	}

	if s.cacheStore != nil {
		if n, err := s.cacheStore.Count(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to count cache entries")
			resp.Checks["cache"] = "error: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.CacheEntries = n
			resp.Checks["cache"] = fmt.Sprintf("ok, %d entries", n)
		}
	}

	s.writeJSON(w, resp)
}

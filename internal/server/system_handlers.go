package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus handles GET /api/system/status
// Operational snapshot: host resources, cache occupancy, circuit breaker
// positions and observed search latency quantiles.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startupTime).Seconds()),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	} else {
		s.log.Warn().Err(err).Msg("Failed to read memory stats")
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	} else if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read CPU stats")
	}

	if s.cache != nil {
		status["cache_entries"] = s.cache.Counts()
	}

	if s.gateway != nil {
		circuits := make(map[string]string)
		for provider, state := range s.gateway.States() {
			circuits[provider] = string(state)
		}
		status["circuits"] = circuits
	}

	if s.recorder != nil {
		if quantiles := s.recorder.LatencyQuantiles(); quantiles != nil {
			status["search_latency_ms"] = quantiles
		}
	}

	if s.dir != nil {
		if count, err := s.dir.Count(); err == nil {
			status["directory_securities"] = count
		} else {
			s.log.Warn().Err(err).Msg("Failed to count directory securities")
		}
	}

	s.writeJSON(w, http.StatusOK, status)
}

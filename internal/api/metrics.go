package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// SystemMetrics is the process section of the health response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Devices       DeviceMetrics  `json:"devices"`
	DecisionLog   LogMetrics     `json:"decision_log"`
	PendingCmds   int            `json:"pending_commands"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DeviceMetrics counts the fleet by type.
type DeviceMetrics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	On     int            `json:"on"`
}

// LogMetrics describes the in-memory decision log.
type LogMetrics struct {
	Held     int `json:"held"`
	Capacity int `json:"capacity"`
}

func (s *Server) systemMetrics() SystemMetrics {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.Hub().ClientCount(),
		},
		Devices: DeviceMetrics{ByType: make(map[string]int)},
	}

	for _, snap := range s.registry.View() {
		m.Devices.Total++
		m.Devices.ByType[string(snap.Kind())]++
		if snap[device.KeyPower] == device.PowerOn {
			m.Devices.On++
		}
	}
	if s.ring != nil {
		m.DecisionLog = LogMetrics{Held: s.ring.Len(), Capacity: s.ring.Capacity()}
	}
	if s.commands != nil {
		m.PendingCmds = s.commands.Len()
	}
	return m
}

// handlePrometheus serves the Prometheus exposition.
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeUnavailable(w, "metrics not enabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

package api

import (
	"net/http"
	"time"
)

// handleHealth reports liveness, version and cache counters.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       s.cfg.Version,
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
		"cache": map[string]any{
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"size":      stats.Size,
		},
	})
}

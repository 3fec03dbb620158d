package handlers

import (
	"net/http"
	"time"

	"github.com/throttlegate/throttlegate/internal/core/throttle"
)

// StatsSource is satisfied by *throttle.Engine.
type StatsSource interface {
	Stats() throttle.Stats
}

// ThrottleStatsResponse is the body of GET /admin/throttle.
type ThrottleStatsResponse struct {
	throttle.Stats
	Enabled   bool   `json:"enabled"`
	Timestamp string `json:"timestamp"`
}

// ThrottleStatsHandler serves a snapshot of guest budget, cached identities
// and in-flight limit fetches. A nil source reports admission as disabled.
func ThrottleStatsHandler(source StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ThrottleStatsResponse{
			Stats:     throttle.Stats{Identities: []throttle.CacheEntry{}},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if source != nil {
			resp.Stats = source.Stats()
			resp.Enabled = true
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

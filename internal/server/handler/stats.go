package handler

import (
	"net/http"

	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// StatsSource is satisfied by *tracker.Tracker.
type StatsSource interface {
	Stats() tracker.Stats
}

// EmitterStats is satisfied by *emitter.Emitter.
type EmitterStats interface {
	Pending() int
	Counts() (emitted, delivered, failed int64)
}

// StatsHandler serves detector and delivery counters.
type StatsHandler struct {
	tracker StatsSource
	emitter EmitterStats
	backlog func() int
}

// NewStatsHandler creates a StatsHandler. emitter and backlog may be nil.
func NewStatsHandler(tracker StatsSource, emitter EmitterStats, backlog func() int) *StatsHandler {
	return &StatsHandler{tracker: tracker, emitter: emitter, backlog: backlog}
}

// GetStats returns the tracker statistics plus pipeline and emitter state.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"tracker": h.tracker.Stats(),
	}
	if h.backlog != nil {
		resp["pipeline"] = map[string]any{"backlog": h.backlog()}
	}
	if h.emitter != nil {
		emitted, delivered, failed := h.emitter.Counts()
		resp["emitter"] = map[string]any{
			"emitted":   emitted,
			"delivered": delivered,
			"failed":    failed,
			"pending":   h.emitter.Pending(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

package handlers

import (
	"log"
	"net/http"
	"time"

	"mirrorbox/services/hostpool"
	"mirrorbox/services/upstream"
)

// StatusHandler exposes operational state: mirror reachability, active
// transfers, and the build version.
type StatusHandler struct {
	pool         *hostpool.Pool
	session      *upstream.SessionStore
	tracker      *StreamTracker
	httpc        *http.Client
	marker       string
	probeTimeout time.Duration
	version      string
}

func NewStatusHandler(pool *hostpool.Pool, session *upstream.SessionStore, tracker *StreamTracker, httpc *http.Client, clientMarker string, probeTimeout time.Duration, version string) *StatusHandler {
	if httpc == nil {
		httpc = &http.Client{}
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &StatusHandler{
		pool:         pool,
		session:      session,
		tracker:      tracker,
		httpc:        httpc,
		marker:       clientMarker,
		probeTimeout: probeTimeout,
		version:      version,
	}
}

// Mirrors handles GET /api/status/mirrors: probes every host concurrently
// and reports reachability.
func (h *StatusHandler) Mirrors(w http.ResponseWriter, r *http.Request) {
	headers := upstream.MetadataHeaders(h.pool.Primary(), "", h.marker)
	results := h.pool.ProbeAll(r.Context(), h.httpc, headers, h.probeTimeout)
	reachable := 0
	for _, res := range results {
		if res.Reachable {
			reachable++
		}
	}
	log.Printf("[status] mirror probe: %d/%d reachable", reachable, len(results))
	writeJSON(w, http.StatusOK, map[string]any{
		"mirrors":   results,
		"reachable": reachable,
	})
}

// Streams handles GET /api/status/streams.
func (h *StatusHandler) Streams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  h.tracker.Count(),
		"streams": h.tracker.Snapshot(),
	})
}

// Version handles GET /api/version.
func (h *StatusHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        h.version,
		"hosts":          h.pool.Size(),
		"sessionCookies": h.session.Len(),
	})
}

// Options serves CORS preflight for status routes.
func (h *StatusHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"syscall"

	"mirrorbox/services/payload"
	"mirrorbox/services/streamproxy"
	"mirrorbox/services/upstream"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

// writeError maps internal failures to distinct user-facing status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	code := "upstream_error"

	var extractErr *payload.ExtractionError
	switch {
	case errors.Is(err, upstream.ErrInvalidSelection):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, upstream.ErrNotFoundUpstream):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, upstream.ErrForbiddenUpstream):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, upstream.ErrNoCandidates):
		status, code = http.StatusNotFound, "no_candidates"
	case errors.Is(err, streamproxy.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, streamproxy.ErrLinkExpired):
		status, code = http.StatusGone, "link_expired"
	case errors.Is(err, streamproxy.ErrRegionRestricted):
		status, code = http.StatusUnavailableForLegalReasons, "region_restricted"
	case errors.As(err, &extractErr):
		status, code = http.StatusBadGateway, "extraction_failed"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "upstream_timeout"
	}

	writeJSON(w, status, map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}

func writeCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set(
		"Access-Control-Allow-Headers",
		"Range, Content-Type, Accept, Origin, X-Requested-With",
	)
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges, Content-Type")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func isClientGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		msg := netErr.Err.Error()
		if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset") {
			return true
		}
	}
	return false
}

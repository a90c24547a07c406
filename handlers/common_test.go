package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mirrorbox/services/payload"
	"mirrorbox/services/streamproxy"
	"mirrorbox/services/upstream"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid selection", fmt.Errorf("wrap: %w", upstream.ErrInvalidSelection), http.StatusBadRequest, "invalid_request"},
		{"upstream 404", upstream.ErrNotFoundUpstream, http.StatusNotFound, "not_found"},
		{"upstream 403", upstream.ErrForbiddenUpstream, http.StatusForbidden, "forbidden"},
		{"no candidates", upstream.ErrNoCandidates, http.StatusNotFound, "no_candidates"},
		{"stream 404", streamproxy.ErrNotFound, http.StatusNotFound, "not_found"},
		{"expired link", streamproxy.ErrLinkExpired, http.StatusGone, "link_expired"},
		{"region restricted", streamproxy.ErrRegionRestricted, http.StatusUnavailableForLegalReasons, "region_restricted"},
		{"extraction failure", &payload.ExtractionError{Reason: "no script"}, http.StatusBadGateway, "extraction_failed"},
		{"generic upstream", fmt.Errorf("host exploded"), http.StatusBadGateway, "upstream_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["code"] != tc.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tc.wantCode)
			}
			if body["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestStreamTrackerLifecycle(t *testing.T) {
	tracker := NewStreamTracker()
	id, counter := tracker.Start("https://cdn.test/a.mp4", "bytes=0-")
	if tracker.Count() != 1 {
		t.Fatalf("count = %d, want 1", tracker.Count())
	}

	atomic.StoreInt64(counter, 4096)
	snap := tracker.Snapshot()
	if len(snap) != 1 || snap[0].ID != id || snap[0].Bytes != 4096 {
		t.Errorf("snapshot = %+v", snap)
	}

	tracker.End(id)
	if tracker.Count() != 0 {
		t.Errorf("count after end = %d, want 0", tracker.Count())
	}
}

package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"mirrorbox/services/streamproxy"
	"mirrorbox/services/upstream"
)

// StreamHandler relays media transfers to the client. The upstream does the
// range math; this handler passes ranges up and bytes down.
type StreamHandler struct {
	proxy   *streamproxy.Proxy
	session *upstream.SessionStore
	tracker *StreamTracker
}

func NewStreamHandler(proxy *streamproxy.Proxy, session *upstream.SessionStore, tracker *StreamTracker) *StreamHandler {
	return &StreamHandler{proxy: proxy, session: session, tracker: tracker}
}

// Serve handles GET/HEAD /api/stream. The media URL comes from a prior
// downloads call; cookies default to the process session when the caller
// does not supply their own.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  "invalid_request",
			"error": "url is required",
		})
		return
	}

	cookies := strings.TrimSpace(r.URL.Query().Get("cookie"))
	if cookies == "" {
		cookies = h.session.String()
	}
	rangeHeader := r.Header.Get("Range")
	ctx := r.Context()

	result, err := h.proxy.Stream(ctx, rawURL, cookies, rangeHeader)
	if err != nil {
		log.Printf("[stream] open failed range=%q: %v", rangeHeader, err)
		writeError(w, err)
		return
	}
	defer result.Body.Close()

	writeCommonHeaders(w)
	for key, values := range result.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if filename := strings.TrimSpace(r.URL.Query().Get("filename")); filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(result.Status)

	if r.Method == http.MethodHead {
		return
	}

	streamID, bytesCounter := h.tracker.Start(rawURL, rangeHeader)
	defer h.tracker.End(streamID)

	buf := make([]byte, 512*1024) // 512KB buffer
	var total int64
	flusher, _ := w.(http.Flusher)

	lastLogBytes := int64(0)
	const logInterval = 10 * 1024 * 1024 // Log every 10MB

	log.Printf("[stream] starting copy id=%s status=%d range=%q", streamID, result.Status, rangeHeader)

	for {
		// Client disconnect cancels the upstream transfer too.
		select {
		case <-ctx.Done():
			log.Printf("[stream] cancelled id=%s total=%d reason=%v", streamID, total, ctx.Err())
			return
		default:
		}

		n, readErr := result.Body.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			if writeErr != nil {
				if isClientGone(writeErr) || ctx.Err() == context.Canceled {
					log.Printf("[stream] client disconnected id=%s total=%d", streamID, total)
					return
				}
				log.Printf("[stream] write error id=%s total=%d err=%v", streamID, total, writeErr)
				return
			}
			total += int64(written)
			atomic.StoreInt64(bytesCounter, total)

			if total-lastLogBytes >= logInterval {
				log.Printf("[stream] progress id=%s total=%d range=%q", streamID, total, rangeHeader)
				lastLogBytes = total
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				// Mid-transfer upstream failure. The status line is already
				// out, so all we can do is cut the connection short.
				log.Printf("[stream] read error id=%s total=%d err=%v", streamID, total, readErr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			log.Printf("[stream] complete id=%s total=%d range=%q", streamID, total, rangeHeader)
			return
		}
	}
}

// Options serves CORS preflight for the stream route.
func (h *StreamHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeCommonHeaders(w)
	w.WriteHeader(http.StatusOK)
}

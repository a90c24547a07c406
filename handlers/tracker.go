package handlers

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActiveStream is one in-flight media transfer, for the status endpoint.
type ActiveStream struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Range     string    `json:"range,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Bytes     int64     `json:"bytes"`
}

// StreamTracker keeps a live view of open transfers. Entries disappear when
// the transfer ends; nothing is persisted.
type StreamTracker struct {
	mu      sync.Mutex
	streams map[string]*trackedStream
}

type trackedStream struct {
	info  ActiveStream
	bytes *int64
}

func NewStreamTracker() *StreamTracker {
	return &StreamTracker{streams: make(map[string]*trackedStream)}
}

// Start registers a transfer and returns its ID plus the byte counter the
// copy loop updates.
func (t *StreamTracker) Start(url, rangeHeader string) (string, *int64) {
	id := uuid.NewString()
	counter := new(int64)
	t.mu.Lock()
	t.streams[id] = &trackedStream{
		info: ActiveStream{
			ID:        id,
			URL:       url,
			Range:     rangeHeader,
			StartedAt: time.Now(),
		},
		bytes: counter,
	}
	t.mu.Unlock()
	return id, counter
}

func (t *StreamTracker) End(id string) {
	t.mu.Lock()
	delete(t.streams, id)
	t.mu.Unlock()
}

// Snapshot returns the current transfers with up-to-date byte counts.
func (t *StreamTracker) Snapshot() []ActiveStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ActiveStream, 0, len(t.streams))
	for _, s := range t.streams {
		info := s.info
		info.Bytes = atomic.LoadInt64(s.bytes)
		out = append(out, info)
	}
	return out
}

func (t *StreamTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

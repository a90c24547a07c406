package upstream

import (
	"net/http"
	"strings"
	"sync"
)

// SessionStore holds the process-wide upstream session cookies. It is the
// only shared mutable state in the dispatcher path, so all access goes
// through the mutex. Merging is name-wise: a new value wins for its name,
// names the upstream did not re-set persist. Last-writer-wins per name is
// acceptable because the values are idempotent session identifiers.
type SessionStore struct {
	mu      sync.RWMutex
	cookies map[string]string
	order   []string // first-seen order, for stable rendering
}

func NewSessionStore() *SessionStore {
	return &SessionStore{cookies: make(map[string]string)}
}

// Merge folds response cookies into the store.
func (s *SessionStore) Merge(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, seen := s.cookies[name]; !seen {
			s.order = append(s.order, name)
		}
		s.cookies[name] = c.Value
	}
}

// MergeString folds a semicolon-joined "name=value; name2=value2" string
// into the store. Pairs without an equals sign are ignored.
func (s *SessionStore) MergeString(cookie string) {
	pairs := strings.Split(cookie, ";")
	parsed := make([]*http.Cookie, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			continue
		}
		parsed = append(parsed, &http.Cookie{
			Name:  strings.TrimSpace(pair[:eq]),
			Value: strings.TrimSpace(pair[eq+1:]),
		})
	}
	s.Merge(parsed)
}

// String renders the current session as a Cookie header value, or empty
// when no cookies are known yet.
func (s *SessionStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return ""
	}
	var b strings.Builder
	for i, name := range s.order {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(s.cookies[name])
	}
	return b.String()
}

// Len returns the number of known cookie names.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cookies)
}

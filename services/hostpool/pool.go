package hostpool

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Pool is the ordered list of interchangeable upstream hosts. The first
// entry is the primary; the rest are mirrors tried in order on failover.
// Read-only after construction, so no locking is needed.
type Pool struct {
	hosts []string
}

// New builds a pool from configured base URLs. Entries are normalized to
// scheme://host form without a trailing slash; blank entries are dropped.
func New(hosts []string) *Pool {
	cleaned := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
			h = "https://" + h
		}
		cleaned = append(cleaned, strings.TrimRight(h, "/"))
	}
	return &Pool{hosts: cleaned}
}

// Hosts returns the failover-ordered host list as a copy.
func (p *Pool) Hosts() []string {
	out := make([]string, len(p.hosts))
	copy(out, p.hosts)
	return out
}

// Primary returns the first host, or empty if the pool is empty.
func (p *Pool) Primary() string {
	if len(p.hosts) == 0 {
		return ""
	}
	return p.hosts[0]
}

// Size returns the number of configured hosts.
func (p *Pool) Size() int {
	return len(p.hosts)
}

// ProbeResult reports reachability of a single mirror.
type ProbeResult struct {
	Host      string `json:"host"`
	Reachable bool   `json:"reachable"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ProbeAll checks every host concurrently with a HEAD request and returns
// results in pool order. A mirror counts as reachable when it answers with
// any status below 500; the point is liveness, not content checks.
func (p *Pool) ProbeAll(ctx context.Context, httpc *http.Client, headers map[string]string, timeout time.Duration) []ProbeResult {
	results := make([]ProbeResult, len(p.hosts))

	workers := pool.New().WithMaxGoroutines(4)
	for i, host := range p.hosts {
		i, host := i, host
		workers.Go(func() {
			results[i] = probeHost(ctx, httpc, host, headers, timeout)
		})
	}
	workers.Wait()

	return results
}

func probeHost(ctx context.Context, httpc *http.Client, host string, headers map[string]string, timeout time.Duration) ProbeResult {
	res := ProbeResult{Host: host}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, host+"/", nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := httpc.Do(req)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		log.Printf("[hostpool] probe failed host=%s err=%v", host, err)
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	res.Reachable = resp.StatusCode < 500
	return res
}

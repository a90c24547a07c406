package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mirrorbox/services/hostpool"

	"github.com/avast/retry-go/v4"
)

const defaultMaxRetries = 2

// Request describes one logical call against the host pool. Headers override
// the default fingerprint on conflicting keys; a caller-supplied Cookie
// suppresses the session cookie.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	Headers     map[string]string
	RefererPath string
	// MaxRetries is the number of extra failover sweeps after the first.
	// Negative means the dispatcher's configured default.
	MaxRetries int
}

// Dispatcher issues logical requests with retry-with-failover semantics
// across the host pool, attaching fingerprint headers and session cookies,
// and folding any cookies the upstream sets back into the session store.
type Dispatcher struct {
	pool    *hostpool.Pool
	session *SessionStore
	httpc   *http.Client
	marker  string
	timeout time.Duration
	retries int
}

func NewDispatcher(pool *hostpool.Pool, session *SessionStore, httpc *http.Client, clientMarker string, timeout time.Duration, maxRetries int) *Dispatcher {
	if httpc == nil {
		httpc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &Dispatcher{
		pool:    pool,
		session: session,
		httpc:   httpc,
		marker:  clientMarker,
		timeout: timeout,
		retries: maxRetries,
	}
}

// Session exposes the dispatcher's session store.
func (d *Dispatcher) Session() *SessionStore {
	return d.session
}

// Dispatch runs the request against each host in pool order, retrying the
// whole sweep with an increasing backoff when every host fails on transport.
// A 404/403 from any host aborts everything: no mirror will answer
// differently for a resource the upstream says is gone or off-limits.
// Returns the response body and the session cookie string after any merge.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) ([]byte, string, error) {
	if d.pool.Size() == 0 {
		return nil, "", fmt.Errorf("no upstream hosts configured")
	}

	maxRetries := req.MaxRetries
	if maxRetries < 0 {
		maxRetries = d.retries
	}

	var payload []byte
	err := retry.Do(
		func() error {
			var lastErr error
			for _, host := range d.pool.Hosts() {
				// A cancelled caller should not burn through the remaining
				// mirrors just to fail fast on each one.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return retry.Unrecoverable(ctxErr)
				}
				body, hostErr := d.tryHost(ctx, host, req)
				if hostErr == nil {
					payload = body
					return nil
				}
				if IsFatal(hostErr) {
					return retry.Unrecoverable(hostErr)
				}
				log.Printf("[dispatch] host failed host=%s path=%s err=%v", host, req.Path, hostErr)
				lastErr = hostErr
			}
			return lastErr
		},
		retry.Attempts(uint(maxRetries+1)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * time.Second
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[dispatch] sweep %d failed on all hosts path=%s err=%v", n+1, req.Path, err)
		}),
	)
	if err != nil {
		return nil, "", err
	}

	return payload, d.session.String(), nil
}

func (d *Dispatcher) tryHost(ctx context.Context, host string, req Request) ([]byte, error) {
	endpoint := host + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	hostCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(hostCtx, req.Method, endpoint, body)
	if err != nil {
		return nil, err
	}

	for key, value := range MetadataHeaders(host, req.RefererPath, d.marker) {
		httpReq.Header.Set(key, value)
	}
	callerCookie := false
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
		if strings.EqualFold(key, "Cookie") {
			callerCookie = true
		}
	}
	if !callerCookie {
		if cookie := d.session.String(); cookie != "" {
			httpReq.Header.Set("Cookie", cookie)
		}
	}
	// Some mirrors route on the Host header rather than SNI alone.
	httpReq.Host = httpReq.URL.Host

	resp, err := d.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// Merge cookies regardless of status: mirrors hand out session cookies
	// on challenge responses too.
	if cookies := resp.Cookies(); len(cookies) > 0 {
		d.session.Merge(cookies)
		log.Printf("[dispatch] merged %d cookie(s) from %s", len(cookies), host)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w (%s %s)", ErrNotFoundUpstream, req.Method, req.Path)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (%s %s)", ErrForbiddenUpstream, req.Method, req.Path)
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("host %s returned %s", host, resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", host, err)
	}
	return payload, nil
}

package streamproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mirrorbox/services/hostpool"
	"mirrorbox/services/upstream"
)

// Semantic stream outcomes, mapped from CDN status codes. The distinction
// between an expired link and a region restriction hinges on whether the URL
// carries a signature marker: a signed URL that gets denied has simply run
// out, an unsigned one was never going to be served from here.
var (
	ErrNotFound         = errors.New("stream: media not found")
	ErrLinkExpired      = errors.New("stream: download link expired")
	ErrRegionRestricted = errors.New("stream: media restricted in this region")
)

// Result is one open upstream transfer. The caller owns Body and must close
// it; closing also releases the per-transfer timeout. Length and range
// information travels in Header, mirrored from the upstream response.
type Result struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Proxy relays byte-range requests to signed upstream media URLs using the
// media fingerprint profile.
type Proxy struct {
	httpc        *http.Client
	pool         *hostpool.Pool
	probeTimeout time.Duration
	mediaTimeout time.Duration
}

func New(httpc *http.Client, pool *hostpool.Pool, probeTimeout, mediaTimeout time.Duration) *Proxy {
	if httpc == nil {
		httpc = &http.Client{}
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	if mediaTimeout <= 0 {
		mediaTimeout = 30 * time.Minute
	}
	return &Proxy{
		httpc:        httpc,
		pool:         pool,
		probeTimeout: probeTimeout,
		mediaTimeout: mediaTimeout,
	}
}

// signatureParams are query keys that mark a URL as signed/time-limited.
var signatureParams = []string{"sign", "signature", "sig", "expires", "exp", "token", "auth_key", "x-amz-signature", "x-amz-expires"}

func isSignedURL(u *url.URL) bool {
	for key := range u.Query() {
		lower := strings.ToLower(key)
		for _, marker := range signatureParams {
			if lower == marker {
				return true
			}
		}
	}
	return false
}

// classify maps a CDN status to a semantic error, or nil when the status is
// not one of the recognized refusals.
func classify(status int, signed bool) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrLinkExpired
	case http.StatusForbidden:
		if signed {
			return ErrLinkExpired
		}
		return ErrRegionRestricted
	}
	return nil
}

func (p *Proxy) origin() string {
	if p.pool != nil && p.pool.Size() > 0 {
		return p.pool.Primary()
	}
	return ""
}

// probe issues a header-only request against the media URL so refusals are
// caught before the transfer starts. Transport-level probe failures are
// logged and ignored; the full GET is the authoritative attempt.
func (p *Proxy) probe(ctx context.Context, mediaURL *url.URL, cookies string) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, mediaURL.String(), nil)
	if err != nil {
		return nil
	}
	for key, value := range upstream.MediaHeaders(p.origin(), "", cookies) {
		req.Header.Set(key, value)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		log.Printf("[stream] probe failed, continuing to transfer url=%s err=%v", mediaURL.Host, err)
		return nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if err := classify(resp.StatusCode, isSignedURL(mediaURL)); err != nil {
		return err
	}
	return nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelBody) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Stream probes the media URL, then opens the ranged transfer and hands the
// response stream back without buffering. Range, length, and type headers
// pass through from the upstream.
func (p *Proxy) Stream(ctx context.Context, rawURL, cookies, rangeHeader string) (*Result, error) {
	mediaURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || mediaURL.Scheme == "" || mediaURL.Host == "" {
		return nil, fmt.Errorf("invalid media url %q", rawURL)
	}

	if err := p.probe(ctx, mediaURL, cookies); err != nil {
		return nil, err
	}

	transferCtx, cancel := context.WithTimeout(ctx, p.mediaTimeout)

	req, err := http.NewRequestWithContext(transferCtx, http.MethodGet, mediaURL.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	for key, value := range upstream.MediaHeaders(p.origin(), rangeHeader, cookies) {
		req.Header.Set(key, value)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open media transfer: %w", err)
	}

	if semErr := classify(resp.StatusCode, isSignedURL(mediaURL)); semErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, semErr
	}
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("media upstream returned %s", resp.Status)
	}

	status := http.StatusOK
	if resp.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
	}

	header := make(http.Header)
	for _, key := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"} {
		if value := resp.Header.Get(key); value != "" {
			header.Set(key, value)
		}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/octet-stream")
	}
	if status == http.StatusPartialContent && header.Get("Accept-Ranges") == "" {
		header.Set("Accept-Ranges", "bytes")
	}

	log.Printf("[stream] transfer open host=%s status=%d length=%d range=%q", mediaURL.Host, resp.StatusCode, resp.ContentLength, rangeHeader)

	return &Result{
		Status: status,
		Header: header,
		Body:   &cancelBody{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

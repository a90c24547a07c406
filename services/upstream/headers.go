package upstream

import "strings"

// The upstream distinguishes browser traffic from automation by exact header
// fingerprints, and it checks different ones on the page/API endpoints than
// on the media CDN. The two profiles below are not interchangeable: sending
// the metadata profile to the CDN (or vice versa) gets the request rejected.

const (
	metadataAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	metadataUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	mediaAccept    = "*/*"
	mediaUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// The CDN checks Referer for this exact third-party value, unrelated to
	// the content host.
	MediaReferer = "https://fmoviesunblocked.net/"

	clientMarkerHeader = "X-Client-Info"
)

// MetadataHeaders builds the fingerprint for page/API requests against the
// selected host. refererPath, when set, is resolved against the host so the
// Referer points at the content's own detail page.
func MetadataHeaders(host, refererPath, clientMarker string) map[string]string {
	h := map[string]string{
		"Accept":     metadataAccept,
		"User-Agent": metadataUserAgent,
		"Referer":    host + "/",
	}
	if refererPath != "" {
		h["Referer"] = host + "/" + strings.TrimPrefix(refererPath, "/")
	}
	if clientMarker != "" {
		h[clientMarkerHeader] = clientMarker
	}
	return h
}

// MediaHeaders builds the fingerprint for CDN media transfers. origin is the
// selected host without a trailing slash; rangeHeader and cookie are added
// only when non-empty.
func MediaHeaders(origin, rangeHeader, cookie string) map[string]string {
	h := map[string]string{
		"Accept":     mediaAccept,
		"User-Agent": mediaUserAgent,
		"Referer":    MediaReferer,
	}
	if origin != "" {
		h["Origin"] = strings.TrimRight(origin, "/")
	}
	if rangeHeader != "" {
		h["Range"] = rangeHeader
	}
	if cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}

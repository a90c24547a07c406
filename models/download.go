package models

import "strings"

// DownloadCandidate is one downloadable rendition of an episode or movie.
// ResourceURL is the preferred link; URL is the direct CDN fallback. Size is
// nil when the upstream does not report one.
type DownloadCandidate struct {
	Resolution  int    `json:"resolution"`
	Size        *int64 `json:"size,omitempty"`
	URL         string `json:"url,omitempty"`
	ResourceURL string `json:"resourceUrl,omitempty"`
	CanDownload bool   `json:"canDownload"`
}

// BestURL returns the usable link for the candidate, preferring the
// resource URL over the direct one. Empty means the candidate is unusable.
func (c DownloadCandidate) BestURL() string {
	if u := strings.TrimSpace(c.ResourceURL); u != "" {
		return u
	}
	return strings.TrimSpace(c.URL)
}

// DownloadResult is the outcome of a candidate lookup: the filtered list
// plus the session cookies the caller must present when streaming.
type DownloadResult struct {
	Candidates     []DownloadCandidate `json:"candidates"`
	SessionCookies string              `json:"sessionCookies,omitempty"`
}

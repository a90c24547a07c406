package upstream

import "errors"

// Sentinel errors for upstream outcomes that no mirror can change. The
// dispatcher aborts failover immediately when it sees one of these; anything
// else (timeouts, 5xx, connection errors) is retried across hosts.
var (
	// ErrNotFoundUpstream means the upstream reported the resource absent (404).
	ErrNotFoundUpstream = errors.New("upstream: resource not found")

	// ErrForbiddenUpstream means the upstream refused the request outright (403).
	ErrForbiddenUpstream = errors.New("upstream: access forbidden")

	// ErrNoCandidates means the download lookup succeeded but no usable
	// candidate survived filtering. Distinct from an empty success so callers
	// never mistake it for a result.
	ErrNoCandidates = errors.New("upstream: no usable download candidates")

	// ErrInvalidSelection means the caller asked for an impossible
	// season/episode combination.
	ErrInvalidSelection = errors.New("upstream: invalid season/episode selection")
)

// IsFatal reports whether err is a semantic upstream failure that should not
// be retried against other mirrors.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFoundUpstream) || errors.Is(err, ErrForbiddenUpstream)
}

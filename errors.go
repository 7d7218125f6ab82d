package bitlog

import (
	"github.com/kvforge/bitlog/internal/entry"
	"github.com/kvforge/bitlog/internal/manager"
)

// Re-exported sentinels so callers can use errors.Is against the package
// boundary instead of reaching into internal packages.
var (
	// ErrSegmentNotFound means the keydir pointed at a segment id the
	// manager no longer owns. The keydir and the on-disk segment set have
	// diverged; this indicates corruption, not a normal miss.
	ErrSegmentNotFound = manager.ErrSegmentNotFound

	// ErrMalformedEntry means a log record failed to decode: its header
	// didn't fit, or it declared a key/value size the buffer didn't have.
	ErrMalformedEntry = entry.ErrMalformed
)

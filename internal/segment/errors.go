package segment

import (
	"errors"
	"time"
)

// ErrNotExist is returned by Open when the segment's log file is missing.
var ErrNotExist = errors.New("segment: log file does not exist")

// ErrFull is returned by Append when the segment cannot accept the write.
// It is handled internally by the manager via rollover and never reaches
// a Store caller.
var ErrFull = errors.New("segment: full")

// Defaults used only by the scan-rebuild path, which has no caller-supplied
// caps to fall back on; the manager re-applies its own configured caps to
// every segment it actually hands out for writes.
const (
	DefaultMaxSize              int64         = 32 * 1024 * 1024
	DefaultMaxEntries           int64         = 1_000_000
	DefaultMetadataSyncInterval time.Duration = 5 * time.Second
)

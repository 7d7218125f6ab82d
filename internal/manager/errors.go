package manager

import "errors"

// ErrSegmentNotFound means the keydir referenced a segment id the manager
// doesn't own — a sign of corruption between the keydir and disk.
var ErrSegmentNotFound = errors.New("manager: segment not found")

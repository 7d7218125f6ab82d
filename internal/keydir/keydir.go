// Package keydir implements the in-memory index mapping each live key to
// the location of its most recent write, and the startup recovery
// procedure that rebuilds it from a segment manager's on-disk state.
package keydir

import (
	"log"

	"github.com/kvforge/bitlog/internal/manager"
	"github.com/kvforge/bitlog/internal/segment"
)

// Entry records where a key's latest value lives: which segment, the
// byte offset where that entry begins, the value's size, and the
// timestamp of the write (used to resolve recovery ordering).
type Entry struct {
	SegmentID int
	ValuePos  int64
	ValueSize int
	Timestamp float64
}

// Keydir maps each live key to its Entry. It is not internally
// synchronized — callers (the store façade) are expected to serialize
// access the same way the source serializes all store operations.
type Keydir struct {
	m map[string]Entry
}

// New returns an empty keydir.
func New() *Keydir {
	return &Keydir{m: make(map[string]Entry)}
}

// Put unconditionally overwrites key's mapping.
func (k *Keydir) Put(key string, e Entry) {
	k.m[key] = e
}

// Get returns key's entry, if present.
func (k *Keydir) Get(key string) (Entry, bool) {
	e, ok := k.m[key]
	return e, ok
}

// Delete removes key, silently succeeding if it was already absent.
func (k *Keydir) Delete(key string) {
	delete(k.m, key)
}

// Size returns the number of live keys.
func (k *Keydir) Size() int {
	return len(k.m)
}

// RecoverFrom rebuilds the keydir from every segment m owns. Segment
// iteration order is arbitrary; correctness relies entirely on the
// per-key timestamp comparison in upsertIfNewer. It returns the total
// number of malformed index-sidecar lines skipped across all segments,
// for the caller to surface as a metric.
func (k *Keydir) RecoverFrom(m *manager.Manager) (skippedLines int) {
	for _, seg := range m.Segments() {
		skippedLines += k.recoverSegment(seg)
	}
	return skippedLines
}

func (k *Keydir) recoverSegment(seg *segment.Segment) (malformedLines int) {
	entries, malformed, ok, err := segment.ReadIndexFile(seg.IndexFilepath)
	if malformed > 0 {
		log.Printf("warning: skipped %d malformed index line(s) in %s", malformed, seg.IndexFilepath)
	}

	if err != nil {
		log.Printf("warning: index file %s unreadable (%v), falling back to log scan", seg.IndexFilepath, err)
		k.recoverSegmentByScan(seg)
		return malformed
	}

	if !ok {
		// Index sidecar missing entirely.
		k.recoverSegmentByScan(seg)
		return malformed
	}

	for _, rec := range entries {
		k.upsertIfNewer(rec.Key, Entry{
			SegmentID: seg.ID,
			ValuePos:  rec.Offset,
			ValueSize: rec.Size,
			Timestamp: rec.Timestamp,
		})
	}

	return malformed
}

// recoverSegmentByScan iterates entries in file order, applying the same
// keep-latest-timestamp rule using each entry's start offset as its
// recorded position. Tombstones are not special-cased here: they simply
// overwrite because they carry a later timestamp, same as any other
// write, and the read path is responsible for checking the tombstone byte.
func (k *Keydir) recoverSegmentByScan(seg *segment.Segment) {
	var offset int64
	for offset < seg.Size {
		e, err := seg.Read(offset)
		if err != nil {
			log.Printf("warning: stopping scan of segment %d at offset %d: %v", seg.ID, offset, err)
			break
		}

		k.upsertIfNewer(string(e.Key), Entry{
			SegmentID: seg.ID,
			ValuePos:  offset,
			ValueSize: len(e.Value),
			Timestamp: e.Timestamp,
		})

		offset += int64(e.Size())
	}
}

// upsertIfNewer keeps e only if the key is absent or strictly older than
// e's timestamp; on a tie the existing (first-seen) entry wins, making
// recovery idempotent.
func (k *Keydir) upsertIfNewer(key string, e Entry) {
	existing, ok := k.m[key]
	if !ok || e.Timestamp > existing.Timestamp {
		k.m[key] = e
	}
}

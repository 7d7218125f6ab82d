// Package segment implements a single bounded, append-only log file plus
// its two JSON sidecars: the "hint" metadata file and the NDJSON index
// file used to accelerate recovery. It is the unit the manager package
// rolls over between.
package segment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kvforge/bitlog/internal/entry"
)

// Segment is an append-only log file bounded by size and entry count, plus
// its metadata ("hint") and index sidecars.
type Segment struct {
	ID                   int
	Filepath             string
	MetadataFilepath     string
	IndexFilepath        string
	Size                 int64
	NumEntries           int64
	Active               bool
	Closed               bool
	MaxSize              int64
	MaxEntries           int64
	CreatedAt            float64
	MetadataSyncInterval time.Duration
	LastSync             float64

	file      *os.File
	indexFile *os.File
}

// LogFilename returns the on-disk name of segment id's log file.
func LogFilename(id int) string {
	return fmt.Sprintf("segment_%d.log", id)
}

func logPath(baseDir string, id int) string {
	return filepath.Join(baseDir, LogFilename(id))
}

func metadataPath(baseDir string, id int) string {
	return filepath.Join(baseDir, fmt.Sprintf("segment_%d.hint", id))
}

func indexPath(logFilepath string) string {
	return logFilepath + ".index"
}

// New creates a fresh, empty, active segment: log, hint and index files are
// created on disk and the hint is persisted immediately.
func New(baseDir string, id int, maxSize int64, maxEntries int64, syncInterval time.Duration, now float64) (*Segment, error) {
	lp := logPath(baseDir, id)
	mp := metadataPath(baseDir, id)
	ip := indexPath(lp)

	f, err := os.OpenFile(lp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment log %q: %w", lp, err)
	}

	idxf, err := os.OpenFile(ip, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create segment index %q: %w", ip, err)
	}

	s := &Segment{
		ID:                   id,
		Filepath:             lp,
		MetadataFilepath:     mp,
		IndexFilepath:        ip,
		Active:               true,
		MaxSize:              maxSize,
		MaxEntries:           maxEntries,
		CreatedAt:            now,
		MetadataSyncInterval: syncInterval,
		LastSync:             now,
		file:                 f,
		indexFile:            idxf,
	}

	if err := s.syncMetadata(now); err != nil {
		_ = f.Close()
		_ = idxf.Close()
		return nil, fmt.Errorf("sync new segment %d metadata: %w", id, err)
	}

	return s, nil
}

// Open reopens an existing segment. If the hint sidecar exists and its
// recorded size matches the on-disk log size, metadata loads straight from
// it. Otherwise (missing hint, unreadable hint, or a stale hint whose size
// disagrees with the log file) Open falls back to scanning the log and
// rebuilding metadata from scratch, returning a closed, inactive segment.
func Open(baseDir string, id int, now float64) (*Segment, error) {
	lp := logPath(baseDir, id)
	mp := metadataPath(baseDir, id)
	ip := indexPath(lp)

	f, err := os.OpenFile(lp, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, lp)
		}
		return nil, fmt.Errorf("open segment log %q: %w", lp, err)
	}

	idxf, err := os.OpenFile(ip, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open segment index %q: %w", ip, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = idxf.Close()
		return nil, fmt.Errorf("stat segment log %q: %w", lp, err)
	}
	diskSize := info.Size()

	if hint, herr := loadHint(mp); herr == nil && hint.Size == diskSize {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			_ = idxf.Close()
			return nil, fmt.Errorf("seek segment %d to end: %w", id, err)
		}
		s := hint.toSegment(lp, mp, ip, f, idxf)
		return s, nil
	}

	// Missing, unreadable, or stale hint: rebuild from a full scan.
	return scanAndRebuild(id, lp, mp, ip, f, idxf, now)
}

func scanAndRebuild(id int, lp, mp, ip string, f, idxf *os.File, now float64) (*Segment, error) {
	var size int64
	var numEntries int64

	br := bufio.NewReader(io.NewSectionReader(f, 0, 1<<62))
	var hdr [entry.HeaderSize]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			break // EOF or truncated header: stop, discard the rest
		}

		_, keySize, valueSize, _, err := entry.ParseHeader(hdr[:])
		if err != nil {
			break
		}
		entrySize := int64(entry.HeaderSize + keySize + valueSize)

		if _, err := io.CopyN(io.Discard, br, entrySize-entry.HeaderSize); err != nil {
			break // truncated body: discard this trailing partial entry
		}

		size += entrySize
		numEntries++
	}

	// Silently discard any trailing partial entry by truncating to the
	// last good offset.
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = idxf.Close()
		return nil, fmt.Errorf("truncate segment %d to %d: %w", id, size, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		_ = idxf.Close()
		return nil, fmt.Errorf("seek segment %d to end: %w", id, err)
	}

	createdAt := now
	if info, err := f.Stat(); err == nil {
		if mt := info.ModTime(); !mt.IsZero() {
			createdAt = float64(mt.UnixNano()) / 1e9
		}
	}

	s := &Segment{
		ID:                   id,
		Filepath:             lp,
		MetadataFilepath:     mp,
		IndexFilepath:        ip,
		Size:                 size,
		NumEntries:           numEntries,
		Active:               false,
		Closed:               true,
		MaxSize:              DefaultMaxSize,
		MaxEntries:           DefaultMaxEntries,
		CreatedAt:            createdAt,
		MetadataSyncInterval: DefaultMetadataSyncInterval,
		LastSync:             now,
		file:                 f,
		indexFile:            idxf,
	}

	if err := s.syncMetadata(now); err != nil {
		return nil, fmt.Errorf("sync rebuilt segment %d metadata: %w", id, err)
	}

	return s, nil
}

// IsFull reports whether the segment has reached either cap.
func (s *Segment) IsFull() bool {
	return s.Size >= s.MaxSize || s.NumEntries >= s.MaxEntries
}

// IsActive reports whether this segment still accepts writes.
func (s *Segment) IsActive() bool {
	return s.Active && !s.Closed
}

// Close marks the segment inactive/closed and forces a final metadata sync.
func (s *Segment) Close(now float64) error {
	s.Active = false
	s.Closed = true
	return s.syncMetadata(now)
}

// CloseFiles releases the OS file handles without touching metadata
// (used during shutdown after Close has already synced the hint).
func (s *Segment) CloseFiles() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	return s.indexFile.Close()
}

// Append writes entry e to the end of the log, updates in-memory size and
// entry count, logs an index-sidecar record, and periodically syncs
// metadata. It returns the byte offset at which e's header begins.
// ErrFull is returned if e would overflow the segment's caps; the caller
// (the manager) is expected to have already rolled over before calling
// Append in that case.
func (s *Segment) Append(e entry.Entry, now float64) (int64, error) {
	if s.IsFull() {
		return 0, ErrFull
	}

	entrySize := int64(e.Size())
	if s.Size+entrySize > s.MaxSize {
		return 0, ErrFull
	}
	if s.NumEntries+1 > s.MaxEntries {
		return 0, ErrFull
	}

	offset := s.Size

	if _, err := s.file.Write(e.Serialize()); err != nil {
		return 0, fmt.Errorf("write segment %d: %w", s.ID, err)
	}

	s.Size += entrySize
	s.NumEntries++

	if err := s.appendIndexRecord(e.Key, offset, len(e.Value), e.Timestamp); err != nil {
		return 0, fmt.Errorf("append index record segment %d: %w", s.ID, err)
	}

	if now-s.LastSync >= s.MetadataSyncInterval.Seconds() {
		if err := s.syncMetadata(now); err != nil {
			// The log write already landed; a stale hint only costs a
			// slower scan-based recovery next time, so this doesn't fail
			// the append.
			log.Printf("warning: segment %d metadata sync failed: %v", s.ID, err)
		}
	}

	return offset, nil
}

// Read seeks to offset, reads the 17-byte header to learn the key/value
// sizes, reads the remainder, and decodes the entry.
func (s *Segment) Read(offset int64) (entry.Entry, error) {
	var hdr [entry.HeaderSize]byte
	if _, err := s.file.ReadAt(hdr[:], offset); err != nil {
		return entry.Entry{}, fmt.Errorf("%w: read header at %d: %v", entry.ErrMalformed, offset, err)
	}

	_, keySize, valueSize, _, err := entry.ParseHeader(hdr[:])
	if err != nil {
		return entry.Entry{}, err
	}

	total := entry.HeaderSize + keySize + valueSize
	buf := make([]byte, total)
	copy(buf, hdr[:])

	if _, err := s.file.ReadAt(buf[entry.HeaderSize:], offset+entry.HeaderSize); err != nil {
		return entry.Entry{}, fmt.Errorf("%w: read body at %d: %v", entry.ErrMalformed, offset, err)
	}

	return entry.Deserialize(buf)
}

func (s *Segment) appendIndexRecord(key []byte, offset int64, size int, timestamp float64) error {
	rec := indexRecord{
		Key:       string(key),
		Offset:    offset,
		Size:      size,
		Timestamp: timestamp,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	_, err = s.indexFile.Write(line)
	return err
}

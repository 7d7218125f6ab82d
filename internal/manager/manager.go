// Package manager owns the set of segments backing a store: it assigns
// segment ids, routes appends to the single active segment, rolls over
// when that segment is full, and resolves reads by (segment_id, offset).
package manager

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kvforge/bitlog/internal/entry"
	"github.com/kvforge/bitlog/internal/segment"
)

// AppendResult is returned by Append: the segment and start-of-entry
// offset the write landed at.
type AppendResult struct {
	SegmentID int
	Offset    int64
	EntrySize int
}

// Manager owns base_directory's segment set and routes writes to the
// single active segment.
type Manager struct {
	baseDir              string
	segments             map[int]*segment.Segment
	activeID             int
	nextID               int
	maxSegmentSize       int64
	maxSegmentEntries    int64
	metadataSyncInterval time.Duration
	clock                func() float64
}

// New runs the startup protocol: ensure the directory exists, load every
// segment_<id>.log it finds, adopt (or manufacture) the single active
// segment, and report any files it couldn't account for.
func New(baseDir string, maxSegmentSize, maxSegmentEntries int64, metadataSyncInterval time.Duration, clock func() float64) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", baseDir, err)
	}

	m := &Manager{
		baseDir:              baseDir,
		segments:             make(map[int]*segment.Segment),
		activeID:             -1,
		maxSegmentSize:       maxSegmentSize,
		maxSegmentEntries:    maxSegmentEntries,
		metadataSyncInterval: metadataSyncInterval,
		clock:                clock,
	}

	dirEntries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", baseDir, err)
	}

	var ids []int
	actualLogFiles := mapset.NewSet[string]()
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasPrefix(name, "segment_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		actualLogFiles.Add(name)

		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "segment_"), ".log")
		id, convErr := strconv.Atoi(idStr)
		if convErr != nil {
			continue // malformed name; will show up as an orphan below
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	now := clock()
	expected := mapset.NewSet[string]()
	for _, id := range ids {
		seg, openErr := segment.Open(baseDir, id, now)
		if openErr != nil {
			return nil, fmt.Errorf("open segment %d: %w", id, openErr)
		}
		m.segments[id] = seg
		expected.Add(segment.LogFilename(id))
		if id+1 > m.nextID {
			m.nextID = id + 1
		}
	}

	if orphans := actualLogFiles.Difference(expected); orphans.Cardinality() > 0 {
		log.Printf("warning: orphaned segment files in %q: %v", baseDir, orphans.ToSlice())
	}

	if err := m.adoptOrCreateActiveSegment(now); err != nil {
		return nil, err
	}

	return m, nil
}

// adoptOrCreateActiveSegment enforces at-most-one-active-segment: if the
// hints on disk left more than one segment marked active (a stale sidecar
// from before a clean close), the highest id wins and the rest are closed.
// If none are active, a fresh one is created.
func (m *Manager) adoptOrCreateActiveSegment(now float64) error {
	var activeIDs []int
	for id, seg := range m.segments {
		if seg.IsActive() {
			activeIDs = append(activeIDs, id)
		}
	}

	if len(activeIDs) == 0 {
		return m.createActiveSegment()
	}

	sort.Ints(activeIDs)
	m.activeID = activeIDs[len(activeIDs)-1]

	for _, id := range activeIDs[:len(activeIDs)-1] {
		if err := m.segments[id].Close(now); err != nil {
			return fmt.Errorf("close stale active segment %d: %w", id, err)
		}
	}

	return nil
}

func (m *Manager) createActiveSegment() error {
	id := m.nextID
	m.nextID++

	seg, err := segment.New(m.baseDir, id, m.maxSegmentSize, m.maxSegmentEntries, m.metadataSyncInterval, m.clock())
	if err != nil {
		return fmt.Errorf("create segment %d: %w", id, err)
	}

	m.segments[id] = seg
	m.activeID = id
	return nil
}

func (m *Manager) activeSegment() *segment.Segment {
	return m.segments[m.activeID]
}

// Append routes entry e to the active segment, rolling over first if the
// active segment is already full or, when it holds entries, has too little
// room left for e. Rollover is strictly close-then-create-then-append: no
// write is accepted between closing the old segment and registering the
// new one.
func (m *Manager) Append(e entry.Entry) (AppendResult, error) {
	active := m.activeSegment()

	if active.IsFull() || (active.NumEntries > 0 && active.Size+int64(e.Size()) > active.MaxSize) {
		if err := active.Close(m.clock()); err != nil {
			return AppendResult{}, fmt.Errorf("close full segment %d: %w", active.ID, err)
		}
		if err := m.createActiveSegment(); err != nil {
			return AppendResult{}, err
		}
		active = m.activeSegment()
	}

	offset, err := active.Append(e, m.clock())
	if err != nil {
		return AppendResult{}, fmt.Errorf("append to segment %d: %w", active.ID, err)
	}

	return AppendResult{SegmentID: active.ID, Offset: offset, EntrySize: e.Size()}, nil
}

// Read delegates to the named segment.
func (m *Manager) Read(segmentID int, offset int64) (entry.Entry, error) {
	seg, ok := m.segments[segmentID]
	if !ok {
		return entry.Entry{}, fmt.Errorf("%w: segment %d", ErrSegmentNotFound, segmentID)
	}
	return seg.Read(offset)
}

// Segments returns every segment the manager owns, ordered by id for
// deterministic iteration (recovery order doesn't need to be deterministic
// per spec, but deterministic tests are easier to write against it).
func (m *Manager) Segments() []*segment.Segment {
	ids := make([]int, 0, len(m.segments))
	for id := range m.segments {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]*segment.Segment, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.segments[id])
	}
	return out
}

// ActiveSegmentID returns the id of the segment currently accepting writes.
func (m *Manager) ActiveSegmentID() int {
	return m.activeID
}

// Close syncs and closes every segment's file handles. Segments still
// active get a final Close (which flips active/closed and persists the
// hint) before their handles are released.
func (m *Manager) Close() error {
	now := m.clock()
	for _, seg := range m.Segments() {
		if seg.IsActive() {
			if err := seg.Close(now); err != nil {
				return fmt.Errorf("close segment %d: %w", seg.ID, err)
			}
		}
		if err := seg.CloseFiles(); err != nil {
			return fmt.Errorf("close segment %d files: %w", seg.ID, err)
		}
	}
	return nil
}

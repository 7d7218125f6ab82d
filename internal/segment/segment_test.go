package segment

import (
	"os"
	"testing"
	"time"

	"github.com/kvforge/bitlog/internal/entry"
)

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "bitlog_segment_test_*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestNewSegmentIsActiveAndEmpty(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1024, 100, time.Second, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = seg.CloseFiles() })

	if !seg.IsActive() {
		t.Error("new segment should be active")
	}
	if seg.Size != 0 || seg.NumEntries != 0 {
		t.Errorf("new segment should be empty, got size=%d entries=%d", seg.Size, seg.NumEntries)
	}

	if _, err := os.Stat(seg.MetadataFilepath); err != nil {
		t.Errorf("expected hint file to be persisted immediately: %v", err)
	}
}

func TestAppendOffsetsAccumulate(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = seg.CloseFiles() })

	entries := []entry.Entry{
		entry.New([]byte("k1"), []byte("v1"), 1),
		entry.New([]byte("k2"), []byte("v2"), 2),
		entry.New([]byte("k3"), []byte("v33333"), 3),
	}

	var wantOffset int64
	for i, e := range entries {
		off, err := seg.Append(e, 1000)
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if off != wantOffset {
			t.Errorf("entry %d: offset = %d, want %d", i, off, wantOffset)
		}
		wantOffset += int64(e.Size())
	}

	if seg.Size != wantOffset {
		t.Errorf("segment size = %d, want %d", seg.Size, wantOffset)
	}
	if seg.NumEntries != int64(len(entries)) {
		t.Errorf("num entries = %d, want %d", seg.NumEntries, len(entries))
	}
}

func TestAppendThenRead(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = seg.CloseFiles() })

	e := entry.New([]byte("hello"), []byte("world"), 42.5)
	off, err := seg.Append(e, 1000)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := seg.Read(off)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got.Key) != "hello" || string(got.Value) != "world" {
		t.Errorf("Read = %+v", got)
	}
}

func TestFullRejectionByEntryCount(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 2, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = seg.CloseFiles() })

	for i := 0; i < 2; i++ {
		if _, err := seg.Append(entry.New([]byte("k"), []byte("v"), 1), 1000); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if !seg.IsFull() {
		t.Fatal("segment should be full after max_entries appends")
	}

	if _, err := seg.Append(entry.New([]byte("k3"), []byte("v"), 1), 1000); err == nil {
		t.Error("expected the (max_entries+1)-th append to be rejected")
	}
}

func TestFullRejectionBySize(t *testing.T) {
	dir := tempDir(t)

	e := entry.New([]byte("key"), []byte("value"), 1)
	maxSize := int64(e.Size()) // room for exactly one entry

	seg, err := New(dir, 0, maxSize, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = seg.CloseFiles() })

	if _, err := seg.Append(e, 1000); err != nil {
		t.Fatalf("first append: %v", err)
	}

	if _, err := seg.Append(e, 1000); err == nil {
		t.Error("expected append past max_size to be rejected")
	}
}

func TestOpenMissingLogFails(t *testing.T) {
	dir := tempDir(t)

	if _, err := Open(dir, 42, 1000); err == nil {
		t.Error("expected Open of a nonexistent segment to fail")
	}
}

func TestOpenLoadsFromHint(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := seg.Append(entry.New([]byte("a"), []byte("1"), 1), 1000); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := seg.Close(1001); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := seg.CloseFiles(); err != nil {
		t.Fatalf("CloseFiles: %v", err)
	}

	reopened, err := Open(dir, 0, 1002)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = reopened.CloseFiles() })

	if reopened.Size != seg.Size || reopened.NumEntries != seg.NumEntries {
		t.Errorf("reopened segment state mismatch: size=%d entries=%d, want size=%d entries=%d",
			reopened.Size, reopened.NumEntries, seg.Size, seg.NumEntries)
	}
	if reopened.IsActive() {
		t.Error("reopened closed segment should not be active")
	}
}

func TestOpenRebuildsWhenHintMissing(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := seg.Append(entry.New([]byte("k"), []byte("v"), float64(i)), 1000); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	wantSize := seg.Size
	wantEntries := seg.NumEntries
	if err := seg.CloseFiles(); err != nil {
		t.Fatalf("CloseFiles: %v", err)
	}

	if err := os.Remove(seg.MetadataFilepath); err != nil {
		t.Fatalf("remove hint: %v", err)
	}

	rebuilt, err := Open(dir, 0, 2000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = rebuilt.CloseFiles() })

	if rebuilt.Size != wantSize || rebuilt.NumEntries != wantEntries {
		t.Errorf("rebuilt segment state = size=%d entries=%d, want size=%d entries=%d",
			rebuilt.Size, rebuilt.NumEntries, wantSize, wantEntries)
	}
	if rebuilt.IsActive() {
		t.Error("rebuilt segment should come back inactive")
	}
}

func TestOpenDiscardsTrailingPartialEntry(t *testing.T) {
	dir := tempDir(t)

	seg, err := New(dir, 0, 1<<20, 1000, time.Hour, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := seg.Append(entry.New([]byte("good"), []byte("entry"), 1), 1000); err != nil {
		t.Fatalf("Append: %v", err)
	}
	goodSize := seg.Size

	// Simulate a torn write: append a few stray bytes that don't form a
	// complete entry, then close without a final metadata sync.
	if _, err := seg.file.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write stray bytes: %v", err)
	}
	if err := seg.CloseFiles(); err != nil {
		t.Fatalf("CloseFiles: %v", err)
	}
	if err := os.Remove(seg.MetadataFilepath); err != nil {
		t.Fatalf("remove hint: %v", err)
	}

	rebuilt, err := Open(dir, 0, 2000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = rebuilt.CloseFiles() })

	if rebuilt.Size != goodSize {
		t.Errorf("rebuilt size = %d, want %d (trailing partial entry should be discarded)", rebuilt.Size, goodSize)
	}
	if rebuilt.NumEntries != 1 {
		t.Errorf("rebuilt entries = %d, want 1", rebuilt.NumEntries)
	}
}

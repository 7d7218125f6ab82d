package keydir

import (
	"os"
	"testing"
	"time"

	"github.com/kvforge/bitlog/internal/entry"
	"github.com/kvforge/bitlog/internal/manager"
)

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "bitlog_keydir_test_*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func fixedClock(seconds float64) func() float64 {
	return func() float64 { return seconds }
}

func TestBasicPutGetDelete(t *testing.T) {
	kd := New()

	kd.Put("a", Entry{SegmentID: 0, ValuePos: 10, ValueSize: 3, Timestamp: 1})
	if _, ok := kd.Get("a"); !ok {
		t.Fatal("expected key a to be present")
	}
	if kd.Size() != 1 {
		t.Errorf("Size() = %d, want 1", kd.Size())
	}

	kd.Delete("a")
	if _, ok := kd.Get("a"); ok {
		t.Error("expected key a to be absent after delete")
	}

	// Deleting an absent key is silent, not an error.
	kd.Delete("never-existed")
}

func TestRecoverFromLatestWinsOnTimestamp(t *testing.T) {
	dir := tempDir(t)

	m, err := manager.New(dir, 1<<20, 1000, time.Hour, fixedClock(1000))
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	if _, err := m.Append(entry.New([]byte("k"), []byte("older"), 5)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.Append(entry.New([]byte("k"), []byte("newer"), 10)); err != nil {
		t.Fatalf("append: %v", err)
	}

	kd := New()
	kd.RecoverFrom(m)

	e, ok := kd.Get("k")
	if !ok {
		t.Fatal("expected key k to be recovered")
	}
	if e.Timestamp != 10 {
		t.Errorf("recovered timestamp = %v, want 10 (latest wins)", e.Timestamp)
	}

	seg := m.Segments()[0]
	got, err := seg.Read(e.ValuePos)
	if err != nil {
		t.Fatalf("seg.Read: %v", err)
	}
	if string(got.Value) != "newer" {
		t.Errorf("recovered value_pos points at %q, want %q", got.Value, "newer")
	}
}

func TestRecoverFromTieKeepsFirstSeen(t *testing.T) {
	dir := tempDir(t)

	m, err := manager.New(dir, 1<<20, 1000, time.Hour, fixedClock(1000))
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	if _, err := m.Append(entry.New([]byte("k"), []byte("first"), 5)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.Append(entry.New([]byte("k"), []byte("second"), 5)); err != nil {
		t.Fatalf("append: %v", err)
	}

	kd := New()
	kd.RecoverFrom(m)

	e, ok := kd.Get("k")
	if !ok {
		t.Fatal("expected key k to be recovered")
	}

	seg := m.Segments()[0]
	got, err := seg.Read(e.ValuePos)
	if err != nil {
		t.Fatalf("seg.Read: %v", err)
	}
	if string(got.Value) != "first" {
		t.Errorf("tie-break should keep first-seen entry, got %q", got.Value)
	}
}

func TestRecoverFromFallsBackToScanWithoutIndex(t *testing.T) {
	dir := tempDir(t)

	m, err := manager.New(dir, 1<<20, 1000, time.Hour, fixedClock(1000))
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	if _, err := m.Append(entry.New([]byte("a"), []byte("1"), 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.Append(entry.New([]byte("b"), []byte("2"), 2)); err != nil {
		t.Fatalf("append: %v", err)
	}

	seg := m.Segments()[0]
	if err := os.Remove(seg.IndexFilepath); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	kd := New()
	kd.RecoverFrom(m)

	if kd.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", kd.Size())
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		e, ok := kd.Get(key)
		if !ok {
			t.Fatalf("expected key %q to be recovered via scan", key)
		}
		got, err := seg.Read(e.ValuePos)
		if err != nil {
			t.Fatalf("seg.Read(%q): %v", key, err)
		}
		if string(got.Value) != want {
			t.Errorf("key %q: got value %q, want %q", key, got.Value, want)
		}
	}
}

package segment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// indexRecord mirrors one NDJSON line of a segment_<id>.log.index sidecar.
type indexRecord struct {
	Key       string  `json:"key"`
	Offset    int64   `json:"offset"`
	Size      int     `json:"size"`
	Timestamp float64 `json:"timestamp"`
}

// IndexEntry is the public shape consumed by recovery: one parsed
// index-sidecar record. Malformed lines have no IndexEntry; ReadIndexFile
// reports only their count.
type IndexEntry struct {
	Key       string
	Offset    int64
	Size      int
	Timestamp float64
}

// ReadIndexFile reads a segment's NDJSON index sidecar line by line. Lines
// that fail to parse are skipped, not fatal, and counted in malformedLines
// so the caller can log them. If the index file itself doesn't exist,
// ok is false and the caller should fall back to scanning the log.
func ReadIndexFile(path string) (entries []IndexEntry, malformedLines int, ok bool, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("open index %q: %w", path, openErr)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec indexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			malformedLines++
			continue
		}

		entries = append(entries, IndexEntry{
			Key:       rec.Key,
			Offset:    rec.Offset,
			Size:      rec.Size,
			Timestamp: rec.Timestamp,
		})
	}

	if err := sc.Err(); err != nil {
		return entries, malformedLines, true, fmt.Errorf("scan index %q: %w", path, err)
	}

	return entries, malformedLines, true, nil
}

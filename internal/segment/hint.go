package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// hintData mirrors the JSON shape of a segment's metadata sidecar,
// pinned to the field names spec.md lists for segment_<id>.hint.
type hintData struct {
	ID                   int     `json:"id"`
	Filepath             string  `json:"filepath"`
	MetadataFilepath     string  `json:"metadata_filepath"`
	Size                 int64   `json:"size"`
	NumEntries           int64   `json:"num_entries"`
	Active               bool    `json:"active"`
	MaxSize              int64   `json:"max_size"`
	MaxEntries           int64   `json:"max_entries"`
	Closed               bool    `json:"closed"`
	CreatedAt            float64 `json:"created_at"`
	MetadataSyncInterval float64 `json:"metadata_sync_interval"`
	LastSync             float64 `json:"last_sync"`
}

func (s *Segment) toHint() hintData {
	return hintData{
		ID:                   s.ID,
		Filepath:             s.Filepath,
		MetadataFilepath:     s.MetadataFilepath,
		Size:                 s.Size,
		NumEntries:           s.NumEntries,
		Active:               s.Active,
		MaxSize:              s.MaxSize,
		MaxEntries:           s.MaxEntries,
		Closed:               s.Closed,
		CreatedAt:            s.CreatedAt,
		MetadataSyncInterval: s.MetadataSyncInterval.Seconds(),
		LastSync:             s.LastSync,
	}
}

func (h hintData) toSegment(logFilepath, metadataFilepath, indexFilepath string, f, idxf *os.File) *Segment {
	return &Segment{
		ID:                   h.ID,
		Filepath:             logFilepath,
		MetadataFilepath:     metadataFilepath,
		IndexFilepath:        indexFilepath,
		Size:                 h.Size,
		NumEntries:           h.NumEntries,
		Active:               h.Active,
		Closed:               h.Closed,
		MaxSize:              h.MaxSize,
		MaxEntries:           h.MaxEntries,
		CreatedAt:            h.CreatedAt,
		MetadataSyncInterval: durationFromSeconds(h.MetadataSyncInterval),
		LastSync:             h.LastSync,
		file:                 f,
		indexFile:            idxf,
	}
}

func loadHint(path string) (hintData, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return hintData{}, err
	}

	var h hintData
	if err := json.Unmarshal(buf, &h); err != nil {
		return hintData{}, fmt.Errorf("parse hint %q: %w", path, err)
	}

	return h, nil
}

// syncMetadata atomically replaces the hint sidecar with the segment's
// current field values: it writes to a temp sibling file, fsyncs it, then
// renames it over the real path. On any failure the temp file is removed
// and the error is surfaced; in-memory state stays consistent either way
// and a later sync will reconcile.
func (s *Segment) syncMetadata(now float64) error {
	s.LastSync = now

	buf, err := json.MarshalIndent(s.toHint(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hint for segment %d: %w", s.ID, err)
	}

	return writeFileAtomic(s.MetadataFilepath, buf)
}

// writeFileAtomic replaces path with data by writing a temp sibling file
// in the same directory, fsyncing it, and renaming it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmpPath := path + ".tmp"

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	tmpf, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err = tmpf.Write(data); err != nil {
		_ = tmpf.Close()
		return err
	}

	if err = tmpf.Sync(); err != nil {
		_ = tmpf.Close()
		return err
	}

	if err = tmpf.Close(); err != nil {
		return err
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return err
	}

	return nil
}

func durationFromSeconds(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

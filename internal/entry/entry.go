// Package entry implements the on-disk record format for a single
// key/value write: the binary framing that segments append to their log
// files and read back by offset.
package entry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the fixed-width prefix of every serialized entry:
// timestamp(8) + key_size(4) + value_size(4) + tombstone(1).
const HeaderSize = 8 + 4 + 4 + 1

// Entry is a single log record. A tombstone entry carries an empty Value,
// so its serialized value_size is 0.
type Entry struct {
	Timestamp float64
	Key       []byte
	Value     []byte
	Tombstone bool
}

// New builds a live (non-tombstone) entry for key/value at the given
// timestamp.
func New(key, value []byte, timestamp float64) Entry {
	return Entry{Timestamp: timestamp, Key: key, Value: value}
}

// NewTombstone builds a deletion marker for key at the given timestamp.
func NewTombstone(key []byte, timestamp float64) Entry {
	return Entry{Timestamp: timestamp, Key: key, Tombstone: true}
}

// Size returns the total number of bytes Serialize would produce.
func (e Entry) Size() int {
	return HeaderSize + len(e.Key) + len(e.Value)
}

// Serialize encodes e into its on-disk layout:
//
//	timestamp(8,float64 BE) | key_size(4,u32 BE) | value_size(4,u32 BE) | tombstone(1) | key | value
func (e Entry) Serialize() []byte {
	buf := make([]byte, e.Size())

	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(e.Timestamp))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(e.Key)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(e.Value)))
	if e.Tombstone {
		buf[16] = 0x01
	} else {
		buf[16] = 0x00
	}

	copy(buf[HeaderSize:], e.Key)
	copy(buf[HeaderSize+len(e.Key):], e.Value)

	return buf
}

// ParseHeader decodes the fixed-size header, returning the timestamp,
// key/value lengths, and tombstone flag. buf must be at least HeaderSize
// bytes; only the first HeaderSize bytes are consulted.
func ParseHeader(buf []byte) (timestamp float64, keySize, valueSize int, tombstone bool, err error) {
	if len(buf) < HeaderSize {
		return 0, 0, 0, false, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformed, HeaderSize, len(buf))
	}

	timestamp = math.Float64frombits(binary.BigEndian.Uint64(buf[0:8]))
	keySize = int(binary.BigEndian.Uint32(buf[8:12]))
	valueSize = int(binary.BigEndian.Uint32(buf[12:16]))
	tombstone = buf[16] == 0x01

	return timestamp, keySize, valueSize, tombstone, nil
}

// Deserialize decodes buf into an Entry. It fails with ErrMalformed if buf
// is shorter than the header or shorter than the header plus the key/value
// sizes it declares.
func Deserialize(buf []byte) (Entry, error) {
	timestamp, keySize, valueSize, tombstone, err := ParseHeader(buf)
	if err != nil {
		return Entry{}, err
	}

	want := HeaderSize + keySize + valueSize
	if len(buf) < want {
		return Entry{}, fmt.Errorf("%w: entry needs %d bytes, got %d", ErrMalformed, want, len(buf))
	}

	key := make([]byte, keySize)
	copy(key, buf[HeaderSize:HeaderSize+keySize])

	value := make([]byte, valueSize)
	copy(value, buf[HeaderSize+keySize:want])

	return Entry{
		Timestamp: timestamp,
		Key:       key,
		Value:     value,
		Tombstone: tombstone,
	}, nil
}

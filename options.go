package bitlog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for the three configuration constants spec.md carries forward
// from the source (the source does not pin their numeric values; these
// are this implementation's choice).
const (
	DefaultMaxSegmentSize       int64         = 32 * 1024 * 1024
	DefaultMaxSegmentEntries    int64         = 1_000_000
	DefaultMetadataSyncInterval time.Duration = 5 * time.Second
)

type options struct {
	maxSegmentSize       int64
	maxSegmentEntries    int64
	metadataSyncInterval time.Duration
	registerer           prometheus.Registerer
	clock                func() float64
}

func defaultOptions() *options {
	return &options{
		maxSegmentSize:       DefaultMaxSegmentSize,
		maxSegmentEntries:    DefaultMaxSegmentEntries,
		metadataSyncInterval: DefaultMetadataSyncInterval,
		registerer:           prometheus.DefaultRegisterer,
		clock:                wallClockSeconds,
	}
}

func wallClockSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Option configures a Store at Open time, mirroring the teacher's
// functional-options pattern (Option func(*DB), With* constructors).
type Option func(*options)

// WithMaxSegmentSize caps a segment's size in bytes before it rolls over.
func WithMaxSegmentSize(n int64) Option {
	return func(o *options) { o.maxSegmentSize = n }
}

// WithMaxSegmentEntries caps a segment's entry count before it rolls over.
func WithMaxSegmentEntries(n int64) Option {
	return func(o *options) { o.maxSegmentEntries = n }
}

// WithMetadataSyncInterval sets how often an active segment's hint sidecar
// is resynced during appends (it is always synced unconditionally on
// close, regardless of this interval).
func WithMetadataSyncInterval(d time.Duration) Option {
	return func(o *options) { o.metadataSyncInterval = d }
}

// WithRegisterer plugs in the Prometheus registry the store's internal
// metrics are registered against. Defaults to the global default
// registry; pass a fresh prometheus.NewRegistry() to avoid collisions
// when multiple Stores are opened in the same process (tests, in
// particular).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// withClock overrides the wall-clock source, mirroring the teacher's
// onMergeStart test hook. Unexported: it exists to make recovery's
// timestamp-ordering tests deterministic, not as a caller-facing knob.
func withClock(clock func() float64) Option {
	return func(o *options) { o.clock = clock }
}

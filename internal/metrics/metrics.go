// Package metrics defines the store's internal Prometheus
// instrumentation. It never starts an HTTP listener itself — scraping it
// is the excluded HTTP collaborator's job — but every counter and gauge
// here is incremented by real store operations, not left dangling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges a Store updates as it serves
// puts, gets, and deletes, and as it rolls segments over and recovers.
type Metrics struct {
	Puts                 prometheus.Counter
	Gets                 prometheus.Counter
	GetMisses            prometheus.Counter
	GetTombstoneHits     prometheus.Counter
	Deletes              prometheus.Counter
	SegmentRollovers     prometheus.Counter
	RecoverySkippedLines prometheus.Counter
	LastRecoverySeconds  prometheus.Gauge
	KeydirSize           prometheus.GaugeFunc
}

// New registers and returns a fresh metric set against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry across parallel Store instances.
func New(reg prometheus.Registerer, keydirSize func() float64) *Metrics {
	return &Metrics{
		Puts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_puts_total",
			Help: "bitlog_puts_total counts successful Put calls.",
		}),
		Gets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_gets_total",
			Help: "bitlog_gets_total counts Get calls, hit or miss.",
		}),
		GetMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_get_misses_total",
			Help: "bitlog_get_misses_total counts Get calls for keys absent from the keydir.",
		}),
		GetTombstoneHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_get_tombstone_hits_total",
			Help: "bitlog_get_tombstone_hits_total counts Get calls that resolved to a tombstone entry still present in the keydir.",
		}),
		Deletes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_deletes_total",
			Help: "bitlog_deletes_total counts successful Delete calls.",
		}),
		SegmentRollovers: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_segment_rollovers_total",
			Help: "bitlog_segment_rollovers_total counts how many times the active segment was rolled over.",
		}),
		RecoverySkippedLines: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bitlog_recovery_skipped_index_lines_total",
			Help: "bitlog_recovery_skipped_index_lines_total counts malformed index-sidecar lines skipped during recovery.",
		}),
		LastRecoverySeconds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "bitlog_last_recovery_seconds",
			Help: "bitlog_last_recovery_seconds is how long the most recent Open's recovery pass took.",
		}),
		KeydirSize: promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bitlog_keydir_keys",
			Help: "bitlog_keydir_keys is the current number of live keys in the keydir.",
		}, keydirSize),
	}
}

// Package history downsamples device records into a bounded archive: at
// most one sample per time bucket, capped to the retention horizon.
package history

import (
	"math"

	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

// Defaults for sampling.
const (
	DefaultSampleWindowSeconds = 300
	DefaultRetentionHours      = 24.0
)

// Config controls bucket size and retention.
type Config struct {
	SampleWindowSeconds int     `json:"sample_window_seconds"`
	RetentionHours      float64 `json:"retention_hours"`
}

// DefaultConfig is five-minute buckets kept for a day.
func DefaultConfig() Config {
	return Config{SampleWindowSeconds: DefaultSampleWindowSeconds, RetentionHours: DefaultRetentionHours}
}

// Window is the bucket width in seconds, at least one.
func (c Config) Window() int64 {
	return int64(max(1, c.SampleWindowSeconds))
}

// MaxSamples is how many buckets fit in the retention horizon, at least one.
func (c Config) MaxSamples() int {
	n := math.Round(c.RetentionHours * 3600 / float64(c.Window()))
	if math.IsNaN(n) || n < 1 {
		return 1
	}
	return int(n)
}

// Log is one device's sampled history.
type Log struct {
	samples []telemetry.Record
	bucket  int64
	started bool
}

// Sample commits rec when its bucket differs from the last committed one.
// A record whose timestamp equals the last saved sample only moves the
// bucket. rec must carry a timestamp; Sample reports whether it appended.
func (l *Log) Sample(rec telemetry.Record, cfg Config) bool {
	if rec.Timestamp == nil {
		return false
	}
	bucket := floorDiv(*rec.Timestamp, cfg.Window())
	if l.started && bucket == l.bucket {
		return false
	}

	appended := false
	if n := len(l.samples); n == 0 || !sameTimestamp(l.samples[n-1], rec) {
		l.samples = append(l.samples, rec.Clone())
		appended = true
	}
	l.bucket = bucket
	l.started = true

	if excess := len(l.samples) - cfg.MaxSamples(); excess > 0 {
		clear(l.samples[:excess])
		l.samples = l.samples[excess:]
	}
	return appended
}

// Reset forgets both samples and bucket memory.
func (l *Log) Reset() {
	l.samples = nil
	l.bucket = 0
	l.started = false
}

// Samples returns a deep copy of the history, oldest first.
func (l *Log) Samples() []telemetry.Record {
	out := make([]telemetry.Record, len(l.samples))
	for i, r := range l.samples {
		out[i] = r.Clone()
	}
	return out
}

// Len is the number of stored samples.
func (l *Log) Len() int { return len(l.samples) }

// Bucket returns the last committed bucket, if any.
func (l *Log) Bucket() (int64, bool) { return l.bucket, l.started }

func sameTimestamp(a, b telemetry.Record) bool {
	return a.Timestamp != nil && b.Timestamp != nil && *a.Timestamp == *b.Timestamp
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

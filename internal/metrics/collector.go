package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records duration samples (round-trip times, inter-arrival gaps) in a
// thread-safe manner.
type Collector struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	n    int64
	min  time.Duration
	max  time.Duration
	sum  time.Duration
}

// Stats represents aggregated samples.
type Stats struct {
	Count         int64         `json:"count"`
	Min           time.Duration `json:"-"`
	Max           time.Duration `json:"-"`
	Mean          time.Duration `json:"-"`
	P50           time.Duration `json:"-"`
	P90           time.Duration `json:"-"`
	P99           time.Duration `json:"-"`
	Duration      time.Duration `json:"-"`
	SamplesPerSec float64       `json:"samples_per_sec"`

	// JSON-friendly millisecond fields.
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	MeanMs     float64 `json:"mean_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P90Ms      float64 `json:"p90_ms"`
	P99Ms      float64 `json:"p99_ms"`
	DurationMs float64 `json:"duration_ms"`
}

func NewCollector() *Collector {
	// Track samples from 1µs up to 60s with 3 significant figures.
	return &Collector{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Record adds one sample.
func (c *Collector) Record(d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	us := d.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	c.n++
	c.sum += d
	if c.n == 1 || d < c.min {
		c.min = d
	}
	if d > c.max {
		c.max = d
	}
}

// Stats computes aggregated statistics over everything recorded so far.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Count: c.n,
		Min:   c.min,
		Max:   c.max,
	}
	if c.n > 0 {
		stats.Mean = time.Duration(int64(c.sum) / c.n)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50 = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90 = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99 = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinMs = ms(stats.Min)
	stats.MaxMs = ms(stats.Max)
	stats.MeanMs = ms(stats.Mean)
	stats.P50Ms = ms(stats.P50)
	stats.P90Ms = ms(stats.P90)
	stats.P99Ms = ms(stats.P99)

	stats.Duration = elapsed
	stats.DurationMs = ms(elapsed)
	if elapsed > 0 && c.n > 0 {
		stats.SamplesPerSec = float64(c.n) / elapsed.Seconds()
	}
	return stats
}

// Reset discards all samples.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.n, c.min, c.max, c.sum = 0, 0, 0, 0
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

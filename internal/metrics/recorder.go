package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/pacebench/internal/wire"
)

const namespace = "pacebench"

// Counts is a point-in-time view of the run counters.
type Counts struct {
	Sent          int64 `json:"sent"`
	Received      int64 `json:"received"`
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`
	OutOfOrder    int64 `json:"out_of_order"`
	Timeouts      int64 `json:"timeouts"`
	Restarts      int64 `json:"restarts"`
	RoundTrips    int64 `json:"round_trips"`
	Dropped       int64 `json:"dropped"`
}

// Recorder is the sink the benchmark roles report into. It keeps cheap atomic counters
// for progress output, HDR histograms for round-trip times and inter-arrival gaps, and
// mirrors everything into a Prometheus registry. A nil *Recorder ignores all calls.
type Recorder struct {
	sent, received, bytesSent, bytesReceived atomic.Int64
	outOfOrder, timeouts, restarts, trips    atomic.Int64
	dropped                                  atomic.Int64

	rtt  *Collector
	gaps *Collector

	reg           *prometheus.Registry
	promSent      *prometheus.CounterVec
	promReceived  *prometheus.CounterVec
	promBytesSent *prometheus.CounterVec
	promBytesRecv *prometheus.CounterVec
	promOOO       prometheus.Counter
	promTimeouts  prometheus.Counter
	promRestarts  prometheus.Counter
	promDropped   *prometheus.CounterVec
	promRTT       prometheus.Histogram
}

// NewRecorder creates a Recorder with its own Prometheus registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		rtt:  NewCollector(),
		gaps: NewCollector(),
		reg:  prometheus.NewRegistry(),
		promSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Benchmark messages sent, by transport.",
		}, []string{"transport"}),
		promReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Benchmark messages received, by transport.",
		}, []string{"transport"}),
		promBytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_sent_total",
			Help:      "Payload bytes sent, by transport.",
		}, []string{"transport"}),
		promBytesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_received_total",
			Help:      "Payload bytes received, by transport.",
		}, []string{"transport"}),
		promOOO: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_of_order_total",
			Help:      "Stream messages that did not follow the previously received index.",
		}),
		promTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inactivity_timeouts_total",
			Help:      "Tracking windows finalized by the inactivity deadline.",
		}),
		promRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_restarts_total",
			Help:      "Echo pacer restarts from index zero.",
		}),
		promDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded because the receiving peer fell behind, by transport.",
		}, []string{"transport"}),
		promRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "echo_round_trip_seconds",
			Help:      "Echo request round-trip time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}
	r.reg.MustRegister(
		r.promSent, r.promReceived, r.promBytesSent, r.promBytesRecv,
		r.promOOO, r.promTimeouts, r.promRestarts, r.promDropped, r.promRTT,
	)
	return r
}

// Sent records an outbound message carrying payload bytes.
func (r *Recorder) Sent(tag wire.Tag, payload int) {
	if r == nil {
		return
	}
	r.sent.Add(1)
	r.bytesSent.Add(int64(payload))
	r.promSent.WithLabelValues(tag.String()).Inc()
	r.promBytesSent.WithLabelValues(tag.String()).Add(float64(payload))
}

// Received records an inbound message carrying payload bytes.
func (r *Recorder) Received(tag wire.Tag, payload int) {
	if r == nil {
		return
	}
	r.received.Add(1)
	r.bytesReceived.Add(int64(payload))
	r.promReceived.WithLabelValues(tag.String()).Inc()
	r.promBytesRecv.WithLabelValues(tag.String()).Add(float64(payload))
}

// OutOfOrder records a gap in the received index sequence.
func (r *Recorder) OutOfOrder() {
	if r == nil {
		return
	}
	r.outOfOrder.Add(1)
	r.promOOO.Inc()
}

// Timeout records a tracking window ended by inactivity.
func (r *Recorder) Timeout() {
	if r == nil {
		return
	}
	r.timeouts.Add(1)
	r.promTimeouts.Inc()
}

// Restart records an echo pacer restart.
func (r *Recorder) Restart() {
	if r == nil {
		return
	}
	r.restarts.Add(1)
	r.promRestarts.Inc()
}

// Dropped records an inbound message discarded before any role saw it.
func (r *Recorder) Dropped(tag wire.Tag) {
	if r == nil {
		return
	}
	r.dropped.Add(1)
	r.promDropped.WithLabelValues(tag.String()).Inc()
}

// RoundTrip records one completed echo round trip.
func (r *Recorder) RoundTrip(d time.Duration) {
	if r == nil {
		return
	}
	r.trips.Add(1)
	r.rtt.Record(d)
	r.promRTT.Observe(d.Seconds())
}

// Gap records the time between two consecutive stream arrivals.
func (r *Recorder) Gap(d time.Duration) {
	if r == nil {
		return
	}
	r.gaps.Record(d)
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Counts {
	if r == nil {
		return Counts{}
	}
	return Counts{
		Sent:          r.sent.Load(),
		Received:      r.received.Load(),
		BytesSent:     r.bytesSent.Load(),
		BytesReceived: r.bytesReceived.Load(),
		OutOfOrder:    r.outOfOrder.Load(),
		Timeouts:      r.timeouts.Load(),
		Restarts:      r.restarts.Load(),
		RoundTrips:    r.trips.Load(),
		Dropped:       r.dropped.Load(),
	}
}

// RoundTrips returns the round-trip time histogram.
func (r *Recorder) RoundTrips() *Collector {
	if r == nil {
		return nil
	}
	return r.rtt
}

// Gaps returns the inter-arrival histogram.
func (r *Recorder) Gaps() *Collector {
	if r == nil {
		return nil
	}
	return r.gaps
}

// Registry exposes the Prometheus registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

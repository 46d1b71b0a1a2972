// Package metrics collects benchmark measurements.
//
// A [Recorder] is shared by the roles of one process. Roles report sends, receipts,
// out-of-order arrivals, inactivity timeouts, echo restarts and round-trip times into it:
//
//	rec := metrics.NewRecorder()
//	rec.Sent(wire.TagUDP, 1024)
//	rec.RoundTrip(350 * time.Microsecond)
//
//	counts := rec.Snapshot()
//	rtt := rec.RoundTrips().Stats(elapsed)
//
// Duration samples go into HDR histograms ([Collector]) for percentile reporting. All
// counters are mirrored into a private Prometheus registry that [Serve] can expose on
// /metrics.
//
// A nil *Recorder is valid and discards everything, so roles never need to check.
package metrics

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/pacer"
	"github.com/torosent/pacebench/internal/tracker"
)

// RunReport is everything one process observed during a benchmark run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Role       string           `json:"role"`
	Mode       string           `json:"mode"`
	Endpoints  []string         `json:"endpoints,omitempty"`
	Pacer      *pacer.Summary   `json:"pacer,omitempty"`
	Trackers   []tracker.Report `json:"trackers,omitempty"`
	Counts     metrics.Counts   `json:"counts"`
	RoundTrips *metrics.Stats   `json:"round_trips,omitempty"`
	Gaps       *metrics.Stats   `json:"inter_arrival,omitempty"`
	Duration   time.Duration    `json:"-"`
	DurationMs float64          `json:"duration_ms"`
}

// PrintTrackerReport writes the one-line result of a finalized tracking window.
func PrintTrackerReport(w io.Writer, r tracker.Report) {
	if r.TimedOut {
		fmt.Fprintf(w, "[TIMEOUT] Received %d messages.\n", r.Count)
		return
	}
	fmt.Fprintf(w, "Received %d messages in %d microseconds (%.3f ms).\n",
		r.Count, r.ElapsedMicros, float64(r.ElapsedMicros)/1000)
}

// PrintPacerSummary writes the one-line result of a client run.
func PrintPacerSummary(w io.Writer, s pacer.Summary) {
	if s.Mode == pacer.ModeEcho {
		fmt.Fprintf(w, "Completed %d round trips with %d restarts.\n", s.RoundTrips, s.Restarts)
		return
	}
	fmt.Fprintf(w, "Sent %d messages of size %d.\n", s.Sent, s.PayloadSize)
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r RunReport) {
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	fmt.Fprintf(w, "Role:              %s (%s)\n", r.Role, r.Mode)
	for _, ep := range r.Endpoints {
		fmt.Fprintf(w, "Endpoint:          %s\n", ep)
	}
	fmt.Fprintf(w, "Duration:          %s\n", r.Duration)
	fmt.Fprintf(w, "Messages sent:     %d (%d bytes)\n", r.Counts.Sent, r.Counts.BytesSent)
	fmt.Fprintf(w, "Messages received: %d (%d bytes)\n", r.Counts.Received, r.Counts.BytesReceived)
	if r.Counts.OutOfOrder > 0 {
		fmt.Fprintf(w, "Out of order:      %d\n", r.Counts.OutOfOrder)
	}
	if r.Counts.Timeouts > 0 {
		fmt.Fprintf(w, "Timeouts:          %d\n", r.Counts.Timeouts)
	}
	if r.Counts.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:           %d\n", r.Counts.Dropped)
	}

	if r.Pacer != nil {
		fmt.Fprintln(w)
		PrintPacerSummary(w, *r.Pacer)
	}
	if len(r.Trackers) > 0 {
		fmt.Fprintln(w)
		for _, tr := range r.Trackers {
			if tr.Peer != "" {
				fmt.Fprintf(w, "%s: ", tr.Peer)
			}
			PrintTrackerReport(w, tr)
			if tr.OutOfOrder > 0 {
				fmt.Fprintf(w, "  %d out of order\n", tr.OutOfOrder)
			}
		}
	}

	if r.RoundTrips != nil && r.RoundTrips.Count > 0 {
		fmt.Fprintln(w, "\nRound trip:")
		writeStats(w, *r.RoundTrips)
	}
	if r.Gaps != nil && r.Gaps.Count > 0 {
		fmt.Fprintln(w, "\nInter-arrival:")
		writeStats(w, *r.Gaps)
	}
}

func writeStats(w io.Writer, s metrics.Stats) {
	fmt.Fprintf(w, "  Samples:         %d\n", s.Count)
	fmt.Fprintf(w, "  Min:             %s\n", s.Min)
	fmt.Fprintf(w, "  Max:             %s\n", s.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", s.Mean)
	fmt.Fprintf(w, "  P50:             %s\n", s.P50)
	fmt.Fprintf(w, "  P90:             %s\n", s.P90)
	fmt.Fprintf(w, "  P99:             %s\n", s.P99)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r RunReport) error {
	r.DurationMs = float64(r.Duration) / float64(time.Millisecond)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

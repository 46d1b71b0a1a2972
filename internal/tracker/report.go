package tracker

import "time"

// Report summarises a finalized tracking window.
type Report struct {
	Peer       string        `json:"peer,omitempty"`
	Transport  string        `json:"transport,omitempty"`
	Count      int           `json:"count"`
	Bytes      int64         `json:"bytes"`
	OutOfOrder int           `json:"out_of_order"`
	Elapsed    time.Duration `json:"-"`
	// ElapsedMicros is zero when the window ended by timeout.
	ElapsedMicros int64 `json:"elapsed_us"`
	TimedOut      bool  `json:"timed_out"`
}

func newReport(cfg Config, w Window, timedOut bool) Report {
	r := Report{
		Peer:       cfg.Peer,
		Count:      len(w.Sizes),
		Bytes:      w.Bytes,
		OutOfOrder: w.OutOfOrder,
		TimedOut:   timedOut,
	}
	if cfg.Tag != 0 {
		r.Transport = cfg.Tag.String()
	}
	if !timedOut {
		r.Elapsed = w.End.Sub(w.Start)
		r.ElapsedMicros = r.Elapsed.Microseconds()
	}
	return r
}

// MessagesPerSec is the receive rate over the window, or zero when it timed out.
func (r Report) MessagesPerSec() float64 {
	if r.TimedOut || r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Count) / r.Elapsed.Seconds()
}

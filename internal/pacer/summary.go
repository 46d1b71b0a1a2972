package pacer

import "time"

// Summary describes a finished (or interrupted) pacer run.
type Summary struct {
	Mode        Mode          `json:"mode"`
	Limit       uint64        `json:"limit"`
	Sent        uint64        `json:"sent"`
	PayloadSize int           `json:"payload_size,omitempty"`
	RoundTrips  uint64        `json:"round_trips,omitempty"`
	Restarts    int           `json:"restarts"`
	Elapsed     time.Duration `json:"-"`
	ElapsedMs   float64       `json:"elapsed_ms"`
}

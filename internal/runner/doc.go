// Package runner wires the benchmark roles to transports and runs one session.
//
// A session is one of three shapes, picked from the configuration:
//
//   - Client: dial the endpoint, drive a [pacer.Pacer] over the connection and pump
//     replies back into it.
//   - Stream server: listen on one endpoint and give every accepted peer its own
//     [tracker.Tracker]. The session ends once the configured number of trackers
//     have reported.
//   - Echo server: listen on every enabled transport and feed all peers into a single
//     shared [echo.Responder] until the context is cancelled.
//
// Every session is a finite set of goroutines (role event loops, receive pumps and
// accept loops) joined with an errgroup, so the first fatal error cancels the rest.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{Config: *cfg, Logger: log, Recorder: rec})
//	report, err := r.Run(ctx)
package runner

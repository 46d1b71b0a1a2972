package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/pacebench/internal/config"
	"github.com/torosent/pacebench/internal/echo"
	"github.com/torosent/pacebench/internal/output"
	"github.com/torosent/pacebench/internal/pacer"
	"github.com/torosent/pacebench/internal/tracing"
	"github.com/torosent/pacebench/internal/tracker"
	"github.com/torosent/pacebench/internal/transport"
	"github.com/torosent/pacebench/internal/wire"
)

// Runner executes one benchmark session.
type Runner struct {
	opt   Options
	runID string
	log   *slog.Logger
}

// NewRunID returns a sortable identifier for a session.
func NewRunID() string {
	return ulid.Make().String()
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:   opt,
		runID: opt.RunID,
		log:   opt.Logger.With("run", opt.RunID),
	}
}

// RunID identifies this session in logs and reports.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the session the configuration describes. Cancelling ctx ends a server
// session gracefully; the report then covers whatever was observed so far.
func (r *Runner) Run(ctx context.Context) (output.RunReport, error) {
	cfg := r.opt.Config
	report := output.RunReport{
		RunID: r.runID,
		Role:  "client",
		Mode:  string(cfg.Mode),
	}
	if cfg.ServerMode {
		report.Role = "server"
	}

	start := r.opt.Clock.Now()
	var err error
	switch {
	case !cfg.ServerMode:
		err = r.runClient(ctx, &report)
	case cfg.Mode == config.ModeEcho:
		err = r.runEchoServer(ctx, &report)
	default:
		err = r.runStreamServer(ctx, &report)
	}
	report.Duration = r.opt.Clock.Now().Sub(start)

	rec := r.opt.Recorder
	report.Counts = rec.Snapshot()
	if rtt := rec.RoundTrips().Stats(report.Duration); rtt.Count > 0 {
		report.RoundTrips = &rtt
	}
	if gaps := rec.Gaps().Stats(report.Duration); gaps.Count > 0 {
		report.Gaps = &gaps
	}
	return report, err
}

func (r *Runner) runClient(ctx context.Context, report *output.RunReport) error {
	cfg := r.opt.Config
	ep, err := cfg.Endpoint()
	if err != nil {
		return err
	}
	report.Endpoints = []string{ep.String()}

	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, "client", string(cfg.Mode), ep.String())

	conn, err := r.opt.Dial(ctx, ep)
	if err != nil {
		tracing.EndSpan(span, err)
		return err
	}
	r.log.Info("connected", "endpoint", ep.String(), "mode", cfg.Mode)

	p := pacer.New(pacer.Config{
		Mode:        pacer.Mode(cfg.Mode),
		Limit:       cfg.Limit(),
		Interval:    cfg.PaceInterval(),
		PayloadSize: cfg.PayloadSize,
		Tag:         ep.Tag,
		Clock:       r.opt.Clock,
		Logger:      r.log,
		Recorder:    r.opt.Recorder,
	}, conn)

	var summary pacer.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer conn.Close()
		var err error
		summary, err = p.Run(gctx)
		return err
	})
	g.Go(func() error {
		return pump(gctx, r.log, conn, p.Deliver)
	})
	err = g.Wait()

	report.Pacer = &summary
	tracing.EndSpan(span, err, tracing.PacerAttributes(summary)...)
	if err != nil {
		return fmt.Errorf("%s client: %w", cfg.Mode, err)
	}
	return nil
}

func (r *Runner) runStreamServer(ctx context.Context, report *output.RunReport) error {
	cfg := r.opt.Config
	listeners, err := r.listeners(ctx, func() ([]transport.Endpoint, error) {
		ep, err := cfg.ListenEndpoint()
		if err != nil {
			return nil, err
		}
		return []transport.Endpoint{ep}, nil
	})
	if err != nil {
		return err
	}
	ln := listeners[0]
	defer ln.Close()
	report.Endpoints = []string{listenerName(ln)}
	r.log.Info("listening", "endpoint", listenerName(ln), "mode", cfg.Mode)

	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, "server", string(cfg.Mode), listenerName(ln))

	// done stops accepting and ends in-flight sessions once enough runs reported.
	sessionCtx, done := context.WithCancel(ctx)
	defer done()

	var (
		mu       sync.Mutex
		reports  []tracker.Report
		finished int
	)
	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		for {
			conn, err := ln.Accept(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			g.Go(func() error {
				rep, ok, err := r.track(gctx, conn)
				if err != nil || !ok {
					return err
				}
				r.opt.OnTracker(rep)

				mu.Lock()
				reports = append(reports, rep)
				finished++
				enough := cfg.Runs > 0 && finished >= cfg.Runs
				mu.Unlock()
				if enough {
					done()
				}
				return nil
			})
		}
	})
	err = g.Wait()

	mu.Lock()
	report.Trackers = reports
	mu.Unlock()
	tracing.EndSpan(span, err)
	return err
}

// track runs one tracker over conn and closes conn when the tracker is done.
func (r *Runner) track(ctx context.Context, conn transport.Conn) (tracker.Report, bool, error) {
	peer := conn.RemoteAddr()
	ctx, span := tracing.StartWindowSpan(ctx, r.opt.Tracer, peer, conn.Tag().String())

	t := tracker.New(tracker.Config{
		Grace:    r.opt.Config.InactivityTimeout,
		Clock:    r.opt.Clock,
		Logger:   r.log,
		Recorder: r.opt.Recorder,
		Tag:      conn.Tag(),
		Peer:     peer,
	})

	grace := r.opt.Config.InactivityTimeout
	if grace <= 0 {
		grace = tracker.DefaultGrace
	}

	var (
		rep tracker.Report
		ok  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	trackCtx, abandon := context.WithCancel(gctx)
	defer abandon()
	g.Go(func() error {
		defer conn.Close()
		var err error
		rep, ok, err = t.Run(trackCtx)
		if errors.Is(err, context.Canceled) {
			if ctx.Err() != nil {
				w := t.Window()
				r.log.Debug("discarding unfinished window", "peer", peer,
					"state", t.State().String(), "received", len(w.Sizes), "bytes", w.Bytes)
			}
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := pump(gctx, r.log, conn, t.Deliver)
		// A peer that hung up gets one more grace period; a tracker that never started
		// would otherwise wait forever.
		select {
		case <-t.Done():
		case <-gctx.Done():
		case <-r.opt.Clock.After(2 * grace):
			r.log.Debug("peer left without finishing", "peer", peer)
			abandon()
		}
		return err
	})
	err := g.Wait()

	if ok {
		tracing.EndSpan(span, err, tracing.TrackerAttributes(rep)...)
	} else {
		tracing.EndSpan(span, err)
	}
	return rep, ok, err
}

func (r *Runner) runEchoServer(ctx context.Context, report *output.RunReport) error {
	cfg := r.opt.Config
	listeners, err := r.listeners(ctx, func() ([]transport.Endpoint, error) {
		return cfg.EchoEndpoints(), nil
	})
	if err != nil {
		return err
	}
	for _, ln := range listeners {
		defer ln.Close()
		report.Endpoints = append(report.Endpoints, listenerName(ln))
		r.log.Info("listening", "endpoint", listenerName(ln), "mode", cfg.Mode)
	}

	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, "server", string(cfg.Mode), "")

	responder := echo.New(r.log, r.opt.Recorder)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := responder.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	for _, ln := range listeners {
		g.Go(func() error {
			for {
				conn, err := ln.Accept(gctx)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("accept %s: %w", ln.Tag(), err)
				}
				r.log.Debug("peer connected", "peer", conn.RemoteAddr(), "transport", conn.Tag().String())
				g.Go(func() error {
					defer conn.Close()
					return pump(gctx, r.log, conn, func(ctx context.Context, m wire.Message) bool {
						return responder.Deliver(ctx, conn, m)
					})
				})
			}
		})
	}
	err = g.Wait()
	tracing.EndSpan(span, err)
	return err
}

// listeners returns the injected listeners or opens the configured ones. On failure
// any listener already opened is closed.
func (r *Runner) listeners(ctx context.Context, endpoints func() ([]transport.Endpoint, error)) ([]transport.Listener, error) {
	if len(r.opt.Listeners) > 0 {
		return r.opt.Listeners, nil
	}
	eps, err := endpoints()
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		return nil, errors.New("no endpoints to listen on")
	}
	var lns []transport.Listener
	for _, ep := range eps {
		ln, err := transport.Listen(ctx, ep, transport.WithLogger(r.log), transport.WithRecorder(r.opt.Recorder))
		if err != nil {
			for _, open := range lns {
				_ = open.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", ep, err)
		}
		lns = append(lns, ln)
	}
	return lns, nil
}

func listenerName(ln transport.Listener) string {
	return ln.Tag().String() + "://" + ln.Addr().String()
}

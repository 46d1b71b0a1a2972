package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/pacebench/internal/config"
	"github.com/torosent/pacebench/internal/logging"
	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/output"
	"github.com/torosent/pacebench/internal/runner"
	"github.com/torosent/pacebench/internal/tracing"
	"github.com/torosent/pacebench/internal/tracker"
	"github.com/torosent/pacebench/internal/transport"
)

const tracingShutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.Setup(stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return execute(ctx, *cfg, log, stdout, stderr)
}

func execute(ctx context.Context, cfg config.Config, log *slog.Logger, stdout, stderr io.Writer) (err error) {
	runID := runner.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Session{
		RunID: runID,
		Role:  role(cfg),
		Mode:  string(cfg.Mode),
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		err = multierr.Append(err, provider.Shutdown(shutdownCtx))
	}()

	rec := metrics.NewRecorder()
	r := runner.New(runner.Options{
		RunID:    runID,
		Config:   cfg,
		Logger:   log,
		Recorder: rec,
		Tracer:   provider.Tracer(),
		OnTracker: func(rep tracker.Report) {
			if !cfg.JSONOutput {
				output.PrintTrackerReport(stdout, rep)
			}
		},
	})

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(rec, cfg.ProgressInterval, stderr)
		progress.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, rec.Handler()); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var (
		report output.RunReport
		runErr error
	)
	g.Go(func() error {
		defer stopMetrics()
		report, runErr = r.Run(gctx)
		return nil
	})
	waitErr := g.Wait()

	if progress != nil {
		progress.Stop()
	}

	var connErr *transport.ConnectionError
	if errors.As(runErr, &connErr) {
		return multierr.Append(runErr, waitErr)
	}
	// An interrupt ends the session; the partial report is still worth printing.
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		log.Info("interrupted", "run", r.RunID())
		runErr = nil
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return multierr.Combine(runErr, waitErr, err)
		}
	} else {
		output.PrintReport(stdout, report)
	}
	return multierr.Combine(runErr, waitErr)
}

func role(cfg config.Config) string {
	if cfg.ServerMode {
		return "server"
	}
	return "client"
}

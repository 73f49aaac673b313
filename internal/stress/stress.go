// Package stress hammers a shared counter cell from many goroutines and reports
// how many increments survived.
package stress

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/block/sharedcell"
	"github.com/block/sharedcell/internal/log"
)

// Mode selects how each worker increments the counter.
type Mode string

const (
	// Compound reads, increments and writes in three steps. Concurrent workers
	// can overwrite each other's increments.
	Compound Mode = "compound"
	// Atomic increments with a single Update. No increments are lost.
	Atomic Mode = "atomic"
)

type Config struct {
	Workers  int           `help:"Number of concurrent workers." default:"10" env:"STRESS_WORKERS"`
	Duration time.Duration `help:"How long each worker keeps incrementing." default:"1s" env:"STRESS_DURATION"`
	Mode     Mode          `help:"Increment strategy (${enum})." enum:"compound,atomic" default:"compound" env:"STRESS_MODE"`
}

// Report summarises a run.
type Report struct {
	Workers    int
	Initial    int64
	Final      int64
	Iterations int64
	Elapsed    time.Duration
}

// Applied is the number of increments reflected in the final value.
func (r Report) Applied() int64 { return r.Final - r.Initial }

// Lost is the number of increments overwritten by a concurrent writer.
func (r Report) Lost() int64 { return r.Iterations - r.Applied() }

// Run starts cfg.Workers goroutines, each with its own handle to counter, that
// increment it until cfg.Duration has elapsed on clk or ctx is cancelled.
//
// Any poisoning of the counter aborts the run and is returned.
func Run(ctx context.Context, clk clock.Clock, counter *sharedcell.Cell[int64], cfg Config) (Report, error) {
	logger := log.FromContext(ctx).Scope("stress")
	if cfg.Workers <= 0 {
		return Report{}, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Mode == "" {
		cfg.Mode = Compound
	}
	increment, err := incrementer(cfg.Mode)
	if err != nil {
		return Report{}, err
	}

	initial, err := counter.TryRead()
	if err != nil {
		return Report{}, fmt.Errorf("failed to read initial value: %w", err)
	}

	logger.Infof("Starting %d %s workers for %s", cfg.Workers, cfg.Mode, cfg.Duration)
	start := clk.Now()
	deadline := start.Add(cfg.Duration)
	counts := make([]int64, cfg.Workers)
	wg, ctx := errgroup.WithContext(ctx)
	for worker := range cfg.Workers {
		handle := counter.Clone()
		wg.Go(func() error {
			for clk.Now().Before(deadline) {
				if ctx.Err() != nil {
					return nil
				}
				if err := increment(handle); err != nil {
					return fmt.Errorf("worker %d: %w", worker, err)
				}
				counts[worker]++
			}
			logger.Debugf("Worker %d finished after %d increments", worker, counts[worker])
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return Report{}, err
	}
	var iterations int64
	for _, n := range counts {
		iterations += n
	}

	final, err := counter.TryRead()
	if err != nil {
		return Report{}, fmt.Errorf("failed to read final value: %w", err)
	}
	report := Report{
		Workers:    cfg.Workers,
		Initial:    initial,
		Final:      final,
		Iterations: iterations,
		Elapsed:    clk.Since(start),
	}
	logger.Infof("Finished: final=%d iterations=%d lost=%d", report.Final, report.Iterations, report.Lost())
	return report, nil
}

func incrementer(mode Mode) (func(*sharedcell.Cell[int64]) error, error) {
	switch mode {
	case Compound:
		return func(c *sharedcell.Cell[int64]) error {
			value, err := c.TryRead()
			if err != nil {
				return err
			}
			return c.TryWrite(value + 1)
		}, nil
	case Atomic:
		return func(c *sharedcell.Cell[int64]) error {
			return c.TryUpdate(func(v int64) int64 { return v + 1 })
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// Command sharedcell-stress shares a counter between concurrent workers and
// reports how many increments survived.
//
// Progress and the summary are logged to stderr. The final report is also
// printed to stdout as a single key=value line for scripts to parse.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/benbjohnson/clock"

	"github.com/block/sharedcell"
	"github.com/block/sharedcell/internal/automaxprocs"
	"github.com/block/sharedcell/internal/log"
	"github.com/block/sharedcell/internal/stress"
)

type CLI struct {
	Version      kong.VersionFlag `help:"Show version."`
	LogConfig    log.Config       `embed:"" prefix:"log-"`
	StressConfig stress.Config    `embed:""`
	Initial      int64            `help:"Initial counter value." default:"0"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description(`Share a counter between concurrent workers and report lost increments.`),
		kong.UsageOnError(),
		kong.Vars{"version": sharedcell.FormattedVersion(sharedcell.Version, sharedcell.Timestamp)},
	)

	ctx := log.ContextWithLogger(context.Background(), log.Configure(os.Stderr, cli.LogConfig))
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	err := run(ctx, clock.New(), cli, os.Stdout)
	cancel()
	kctx.FatalIfErrorf(err, "stress run failed")
}

func run(ctx context.Context, clk clock.Clock, cli CLI, stdout io.Writer) error {
	logger := log.FromContext(ctx)
	undo, err := automaxprocs.Configure(ctx)
	if err != nil {
		logger.Warnf("Non-fatal error: %s", err)
	}
	defer undo()
	if !sharedcell.IsRelease(sharedcell.Version) {
		logger.Debugf("Running development build %s", sharedcell.Version)
	}

	counter := sharedcell.New(cli.Initial)
	report, err := stress.Run(ctx, clk, counter, cli.StressConfig)
	if err != nil {
		return fmt.Errorf("%s: %w", counter, err)
	}
	logger.Infof("Counter went from %d to %d in %s: %d of %d increments applied, %d lost",
		report.Initial, report.Final, report.Elapsed, report.Applied(), report.Iterations, report.Lost())
	_, err = fmt.Fprintf(stdout, "workers=%d elapsed=%s initial=%d final=%d iterations=%d lost=%d\n",
		report.Workers, report.Elapsed, report.Initial, report.Final, report.Iterations, report.Lost())
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Package automaxprocs matches GOMAXPROCS to the Linux container CPU quota so
// that concurrent workers get the parallelism they were given.
package automaxprocs

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/block/sharedcell/internal/log"
)

// Configure adjusts GOMAXPROCS and returns a function restoring the previous
// value.
func Configure(ctx context.Context) (undo func(), err error) {
	logger := log.FromContext(ctx).Scope("maxprocs")
	undo, err = maxprocs.Set(maxprocs.Logger(logger.Debugf))
	if err != nil {
		return func() {}, fmt.Errorf("failed to set GOMAXPROCS: %w", err)
	}
	logger.Debugf("GOMAXPROCS=%d", runtime.GOMAXPROCS(0))
	return undo, nil
}

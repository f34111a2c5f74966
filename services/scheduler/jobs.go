package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/workflow"
)

// FailStaleRuns fails the runs left active by a crashed process, so that they can be resumed.
func FailStaleRuns(r *workflow.Runner, staleAfter time.Duration, logger core.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := r.FailStale(ctx, staleAfter)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Warn(fmt.Sprintf("scheduler: %d stale workflow runs failed", n))
		}
		return nil
	}
}

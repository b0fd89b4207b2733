// Package queue is the Queue component (spec.md §4.2): a bounded-
// parallelism scheduler over two worker pools ("cpu", "gpu") that never
// blocks the caller — Submit returns a unique id immediately and actual
// completion is observed by polling or by registering an OnComplete hook,
// which the Reaper invokes on its fixed tick.
//
// It is grounded on pkg/queue/pool.go and worker.go in the teacher repo
// (Start/Stop lifecycle, a cancel registry guarded by sync.RWMutex, a
// Health snapshot) but adapted from the teacher's DB-polled, multi-replica
// session claiming to a single-process, in-memory task executor: spec.md
// §1 states the core "runs in a single process" with no cross-replica
// coordination, so there is no need to claim work from Postgres the way
// worker.go's pollAndProcess does.
package queue

import (
	"context"
	"time"

	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// Func is the unit of work a task runs. It must poll ctx.Done() at
// cooperative checkpoints (spec.md §5 "Workers check it at least once per
// logical phase").
type Func func(ctx context.Context) (result any, err error)

// Result is what the Reaper hands to a registered OnComplete hook.
type Result struct {
	Task   *models.Task
	Value  any
	Err    error
}

// OnComplete is invoked by the Reaper for every task of a given Kind that
// has just finished, exactly once, before the task record is dropped from
// the in-memory completed buffer.
type OnComplete func(ctx context.Context, res Result)

// Snapshot is a point-in-time read of one task's bookkeeping row, safe to
// hand to callers without exposing internal synchronization.
type Snapshot = models.Task

// defaultReaperTick is used when Config.UpdateTimeout is zero.
const defaultReaperTick = time.Second

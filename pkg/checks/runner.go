package checks

import (
	"context"
	"runtime/debug"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"golang.org/x/sync/errgroup"
)

// Task is a single named sub check.
type Task struct {
	Name string
	Run  func(ctx context.Context) (*checkresult.CheckResult, error)
}

// RunAll runs all tasks with at most workers in parallel (0 means unlimited).
// The result slice has the same order as tasks. Errors and panics of a task
// become an UNKNOWN result for that task and never affect the others.
func RunAll(ctx context.Context, tasks []Task, workers int) []*checkresult.CheckResult {
	results := make([]*checkresult.CheckResult, len(tasks))

	group, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		group.SetLimit(workers)
	}

	for i := range tasks {
		idx := i
		task := tasks[i]
		group.Go(func() error {
			results[idx] = runTask(ctx, task)

			return nil
		})
	}

	// tasks never return errors
	_ = group.Wait()

	return results
}

func runTask(ctx context.Context, task Task) (res *checkresult.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in %s: %v", task.Name, r)
			log.Debugf("%s", debug.Stack())
			res = checkresult.Unknown("%s: panic: %v", task.Name, r)
		}
	}()

	res, err := task.Run(ctx)
	switch {
	case err != nil:
		log.Debugf("%s failed: %s", task.Name, err.Error())

		return checkresult.Unknown("%s: %s", task.Name, err.Error())
	case res == nil:
		return checkresult.Unknown("%s: no result", task.Name)
	}

	return res
}

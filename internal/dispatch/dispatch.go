// Package dispatch runs webhook processing detached from the
// acknowledgment response. A task's failure is caught and logged at its
// boundary; the triggering request path returns immediately. Cancellation
// is not supported — once dispatched, a task runs to completion or
// failure.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// Runner executes fire-and-forget tasks.
type Runner struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewRunner creates a task runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Go spawns the task in the background. Errors and panics are logged,
// never propagated to the caller.
func (r *Runner) Go(ctx context.Context, name string, task func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked", "task", name, "panic", rec)
			}
		}()
		if err := task(ctx); err != nil {
			r.logger.Error("background task failed", "task", name, "err", err)
			return
		}
		r.logger.Debug("background task complete", "task", name)
	}()
}

// Wait blocks until all dispatched tasks have finished. Used on shutdown
// so in-flight webhook processing drains before the process exits.
func (r *Runner) Wait() {
	r.wg.Wait()
}

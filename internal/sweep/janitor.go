// Package sweep runs periodic background cleanup tasks so that expired
// state is removed off the request path.
package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task removes expired entries and returns how many it removed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) int
}

// Janitor runs each task on its own ticker until its context ends.
type Janitor struct {
	tasks  []Task
	now    func() time.Time
	logger *zap.Logger
}

// New returns a Janitor. Tasks with a non-positive interval or nil Run are
// ignored.
func New(tasks []Task, now func() time.Time, logger *zap.Logger) *Janitor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Interval > 0 && t.Run != nil {
			kept = append(kept, t)
		}
	}
	return &Janitor{tasks: kept, now: now, logger: logger}
}

// Tasks returns the active task names.
func (j *Janitor) Tasks() []string {
	out := make([]string, len(j.tasks))
	for i, t := range j.tasks {
		out[i] = t.Name
	}
	return out
}

// RunOnce runs every task once, sequentially, and returns removals by
// task name.
func (j *Janitor) RunOnce(ctx context.Context) map[string]int {
	out := make(map[string]int, len(j.tasks))
	for _, t := range j.tasks {
		out[t.Name] = j.run(ctx, t)
	}
	return out
}

// Run blocks until ctx is cancelled. It always returns nil after a clean
// shutdown.
func (j *Janitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range j.tasks {
		g.Go(func() error {
			ticker := time.NewTicker(t.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					j.run(ctx, t)
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (j *Janitor) run(ctx context.Context, t Task) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("sweep task panicked", zap.String("task", t.Name), zap.Any("panic", r))
			removed = 0
		}
	}()
	removed = t.Run(ctx, j.now())
	if removed > 0 {
		j.logger.Debug("sweep removed entries", zap.String("task", t.Name), zap.Int("removed", removed))
	}
	return removed
}

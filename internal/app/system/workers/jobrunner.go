// internal/app/system/workers/jobrunner.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/groupchat/internal/app/system/tasks"
	"github.com/dalemusser/groupchat/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Runner runs a set of jobs, each on its own ticker.
type Runner struct {
	jobs   []tasks.Job
	log    *zap.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner creates a runner. Jobs with a non-positive interval are skipped.
func NewRunner(logger *zap.Logger, jobs ...tasks.Job) *Runner {
	var keep []tasks.Job
	for _, j := range jobs {
		if j.Interval <= 0 {
			logger.Info("background job disabled", zap.String("job", j.Name))
			continue
		}
		keep = append(keep, j)
	}
	return &Runner{
		jobs:   keep,
		log:    logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the background loops.
func (w *Runner) Start() {
	for _, j := range w.jobs {
		w.wg.Add(1)
		go w.run(j)
		w.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals every loop to stop and waits for them to finish. Safe to call
// more than once.
func (w *Runner) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("background jobs stopped")
	})
}

func (w *Runner) run(j tasks.Job) {
	defer w.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(j)
		}
	}
}

// RunOnce runs j a single time with the sweep timeout.
func (w *Runner) RunOnce(j tasks.Job) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Sweep(), w.log, j.Name)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("background job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
	}()
	if err := j.Run(ctx); err != nil {
		w.log.Error("background job failed", zap.String("job", j.Name), zap.Error(err))
	}
}

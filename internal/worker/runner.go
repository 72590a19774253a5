// Package worker runs the periodic background jobs of the API process.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one periodic task. Run is called every Every until the runner's
// context is cancelled; a failing or panicking run does not stop the loop.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Runner struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

func NewRunner(log logrus.FieldLogger) *Runner { return &Runner{log: log} }

// SafeGo runs fn on its own goroutine and logs a panic instead of crashing
// the process.
func (r *Runner) SafeGo(ctx context.Context, name string, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recoverPanic(name)
		fn(ctx)
	}()
}

func (r *Runner) recoverPanic(name string) {
	if p := recover(); p != nil {
		r.log.WithFields(logrus.Fields{"job": name, "panic": fmt.Sprint(p)}).
			Errorf("worker: panic recovered\n%s", debug.Stack())
	}
}

// Start launches every job. Each job runs once immediately, then on its ticker.
func (r *Runner) Start(ctx context.Context, jobs ...Job) {
	for _, j := range jobs {
		if j.Every <= 0 {
			r.log.WithField("job", j.Name).Warn("worker: job disabled, no interval")
			continue
		}
		j := j
		r.SafeGo(ctx, j.Name, func(ctx context.Context) { r.loop(ctx, j) })
	}
}

func (r *Runner) loop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Every)
	defer ticker.Stop()
	for {
		r.runOnce(ctx, j)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, j Job) {
	defer r.recoverPanic(j.Name)
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	entry := r.log.WithField("job", j.Name)
	if err := j.Run(ctx); err != nil {
		entry.WithError(err).Error("worker: run failed")
		return
	}
	entry.WithField("took", time.Since(start).String()).Debug("worker: run done")
}

// Wait blocks until every job goroutine returned.
func (r *Runner) Wait() { r.wg.Wait() }

// Package jobs runs the periodic cleanup work: expired session tokens
// every twelve hours, and hourly sweeps of authorization codes, link
// sessions and idle tool sessions.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Schedules.
const (
	TokenSweepInterval = 12 * time.Hour
	AuxSweepInterval   = time.Hour
)

// Task is one unit of cleanup.  It returns how many records it removed.
type Task func(ctx context.Context) (int64, error)

// Job runs its tasks immediately on Start and then on every tick.
type Job struct {
	name     string
	schedule time.Duration
	timeout  time.Duration
	tasks    map[string]Task

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewJob(name string, schedule time.Duration, tasks map[string]Task) *Job {
	return &Job{
		name:     name,
		schedule: schedule,
		timeout:  5 * time.Minute,
		tasks:    tasks,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the job goroutine.
func (j *Job) Start() {
	zap.L().Info("Starting cleanup job", zap.String("job", j.name), zap.Duration("schedule", j.schedule))
	go j.loop()
}

// Stop ends the loop and waits for a running pass to finish.
func (j *Job) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.done
}

func (j *Job) loop() {
	defer close(j.done)
	j.RunOnce(context.Background())

	ticker := time.NewTicker(j.schedule)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.RunOnce(context.Background())
		case <-j.stopCh:
			zap.L().Info("Cleanup job stopped", zap.String("job", j.name))
			return
		}
	}
}

// RunOnce runs every task once.  A failing task is logged and does not
// stop the others.
func (j *Job) RunOnce(ctx context.Context) map[string]int64 {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	out := make(map[string]int64, len(j.tasks))
	for name, task := range j.tasks {
		n, err := task(ctx)
		if err != nil {
			zap.L().Error("Cleanup task failed", zap.String("job", j.name), zap.String("task", name), zap.Error(err))
			continue
		}
		out[name] = n
		if n > 0 {
			zap.L().Info("Cleanup task complete", zap.String("job", j.name), zap.String("task", name), zap.Int64("deleted_count", n))
		}
	}
	return out
}

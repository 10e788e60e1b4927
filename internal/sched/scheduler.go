// Package sched runs the periodic jobs (scrape cycle, match refresh,
// outbox drain) on fixed intervals.
package sched

import (
	"context"
	"sync"
	"time"

	"figtracker/internal/logging"
)

// Job is one periodic unit of work. Run is never invoked concurrently
// with itself; the next tick waits until the previous run finished.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Interval is the pause between run starts.
	Interval time.Duration

	// Run performs one iteration. Errors are logged, never fatal.
	Run func(ctx context.Context) error
}

// Scheduler drives a set of Jobs, one goroutine each.
type Scheduler struct {
	jobs      []Job
	log       *logging.Logger
	triggerCh chan string
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a Scheduler.
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{
		log:       log,
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per job. Each job runs immediately,
// then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
}

// Stop halts all job goroutines and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// Trigger requests an immediate out-of-band run of the named job.
func (s *Scheduler) Trigger(name string) {
	select {
	case s.triggerCh <- name:
	default:
		// Channel full; a run is already queued.
	}
}

// runJob is the per-job loop. Ticks arriving while a run is in
// progress are absorbed by the ticker, so runs never overlap.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, job)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		case name := <-s.triggerCh:
			if name == job.Name {
				s.runOnce(ctx, job)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("[%s] run failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	s.log.Debug("[%s] run finished in %s", job.Name, time.Since(start).Round(time.Millisecond))
}

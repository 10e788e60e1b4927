package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"figtracker/internal/logging"
)

func TestJobRunsImmediatelyAndOnTrigger(t *testing.T) {
	var runs atomic.Int64

	s := New(logging.New())
	s.Register(Job{
		Name:     "job",
		Interval: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() == 1 })

	s.Trigger("job")
	waitFor(t, func() bool { return runs.Load() == 2 })

	// Triggers for other jobs are ignored.
	s.Trigger("other")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), runs.Load())
}

func TestStopWaitsForJobs(t *testing.T) {
	var runs atomic.Int64

	s := New(logging.New())
	s.Register(Job{
		Name:     "job",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	waitFor(t, func() bool { return runs.Load() >= 2 })
	s.Stop()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestContextCancelStopsJobs(t *testing.T) {
	var runs atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())
	s := New(logging.New())
	s.Register(Job{
		Name:     "job",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(ctx)
	waitFor(t, func() bool { return runs.Load() >= 1 })
	cancel()

	time.Sleep(30 * time.Millisecond)
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

package cleanup

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	onRun func()
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.onRun != nil {
		j.onRun()
	}
	return j.err
}

func TestScheduler_RunOnce_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	ok := &countingJob{name: "ok"}
	s := NewScheduler(newTestLogger(&buf), failing, ok)

	if failed := s.RunOnce(context.Background()); failed != 1 {
		t.Errorf("RunOnce() = %d, want 1", failed)
	}
	if failing.runs.Load() != 1 || ok.runs.Load() != 1 {
		t.Errorf("runs = (%d, %d), want (1, 1)", failing.runs.Load(), ok.runs.Load())
	}
	if !hasLogAttr(&buf, "job", "failing") {
		t.Errorf("failed job name should be logged, got: %s", buf.String())
	}
}

func TestScheduler_RunOnce_StopsWhenContextCancelled(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	first := &countingJob{name: "first", onRun: cancel}
	second := &countingJob{name: "second"}
	s := NewScheduler(newTestLogger(&buf), first, second)

	s.RunOnce(ctx)

	if second.runs.Load() != 0 {
		t.Errorf("second job ran %d times after cancellation, want 0", second.runs.Load())
	}
}

func TestScheduler_Start_RunsImmediatelyAndOnTick(t *testing.T) {
	var buf bytes.Buffer
	job := &countingJob{name: "tick"}
	s := NewScheduler(newTestLogger(&buf), job)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for job.runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want at least 3", job.runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}

package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnceCollectsCounts(t *testing.T) {
	j := New([]Task{
		{Name: "a", Interval: time.Second, Run: func(context.Context, time.Time) int { return 3 }},
		{Name: "b", Interval: time.Second, Run: func(context.Context, time.Time) int { return 0 }},
		{Name: "disabled", Interval: 0, Run: func(context.Context, time.Time) int { return 9 }},
	}, nil, nil)

	got := j.RunOnce(context.Background())
	if len(got) != 2 || got["a"] != 3 || got["b"] != 0 {
		t.Fatalf("unexpected counts %v", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	j := New([]Task{{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context, time.Time) int {
			calls.Add(1)
			return 1
		},
	}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", calls.Load())
	}
}

func TestPanickingTaskDoesNotStopJanitor(t *testing.T) {
	j := New([]Task{
		{Name: "boom", Interval: time.Second, Run: func(context.Context, time.Time) int { panic("boom") }},
		{Name: "ok", Interval: time.Second, Run: func(context.Context, time.Time) int { return 1 }},
	}, nil, nil)

	got := j.RunOnce(context.Background())
	if got["boom"] != 0 || got["ok"] != 1 {
		t.Fatalf("unexpected counts %v", got)
	}
}

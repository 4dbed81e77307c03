package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsTaskPeriodically(t *testing.T) {
	var count int32
	task := Task{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		},
	}
	s := New([]Task{task}, nil)
	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&count) < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", count)
	}
}

func TestSchedulerReportsTaskErrors(t *testing.T) {
	errCh := make(chan string, 1)
	task := Task{
		Name:     "failing",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			return context.DeadlineExceeded
		},
	}
	s := New([]Task{task}, func(name string, err error) {
		select {
		case errCh <- name:
		default:
		}
	})
	s.Start(context.Background())
	select {
	case name := <-errCh:
		if name != "failing" {
			t.Fatalf("expected error from task 'failing', got %s", name)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected onErr to be called")
	}
	s.Stop()
}

func TestBoundedPollSymbolsRespectsConcurrencyAndCollectsErrors(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}
	var active int32
	var maxActive int32

	err := BoundedPollSymbols(context.Background(), symbols, 2, func(ctx context.Context, symbol string) error {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent, observed %d", maxActive)
	}
}

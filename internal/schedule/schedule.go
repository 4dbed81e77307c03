// Package schedule runs the periodic background tasks that drive OI/spot
// polling, label generation attempts, tracker cleanup and offline label
// reconciliation, all cancellable via a single context.
package schedule

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is one periodic unit of work. A Task's context is cancelled when
// the Scheduler stops; every invocation of the task receives that same
// context.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Tasks on independent tickers until
// stopped.
type Scheduler struct {
	tasks  []Task
	onErr  func(task string, err error)
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Scheduler for tasks. onErr is invoked (from the task's own
// goroutine) whenever a Run call returns an error; it must not block.
func New(tasks []Task, onErr func(task string, err error)) *Scheduler {
	if onErr == nil {
		onErr = func(string, error) {}
	}
	return &Scheduler{tasks: tasks, onErr: onErr}
}

// Start launches one goroutine per task and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		var wg errgroup.Group
		for _, t := range s.tasks {
			t := t
			wg.Go(func() error {
				s.runLoop(ctx, t)
				return nil
			})
		}
		wg.Wait()
		close(s.done)
	}()
}

func (s *Scheduler) runLoop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Run(ctx); err != nil {
				s.onErr(t.Name, err)
			}
		}
	}
}

// Stop cancels every task and blocks until all task goroutines exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// BoundedPollSymbols runs fn for every symbol with at most maxConcurrent
// in flight at once, collecting the first error (if any) after all
// symbols have been attempted.
func BoundedPollSymbols(ctx context.Context, symbols []string, maxConcurrent int64, fn func(ctx context.Context, symbol string) error) error {
	sem := semaphore.NewWeighted(maxConcurrent)
	var g errgroup.Group

	for _, symbol := range symbols {
		symbol := symbol
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire poll slot: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(ctx, symbol)
		})
	}
	return g.Wait()
}

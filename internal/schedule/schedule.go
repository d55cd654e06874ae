// Package schedule provides a cancellable repeating task. It replaces
// ad-hoc timer callbacks with explicit task lifetime: Every starts a task,
// Stop cancels it and waits for any in-flight run to finish.
package schedule

import (
	"sync"
	"time"
)

// Task is a repeating job. Zero value is not usable; create with Every.
type Task struct {
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// Every runs fn on the given interval until Stop is called. The first run
// happens one interval after Every returns. fn must not block indefinitely;
// a slow run delays subsequent ticks but never overlaps them.
func Every(interval time.Duration, fn func()) *Task {
	t := &Task{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				// Re-check cancellation: Stop may have raced the tick.
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return t
}

// Stop cancels the task and waits for an in-flight run to complete.
// After Stop returns, fn will never be invoked again. Safe to call twice.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	t.wg.Wait()
}

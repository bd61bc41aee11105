// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package scheduler runs tasks after a delay without blocking the caller.
//
// Queue keeps pending tasks in a min-heap ordered by due time and is served
// by a single goroutine (Serve), which makes it a suture.Service. Due tasks
// run on their own goroutines so a slow task never delays the next one.
// Scheduled tasks cannot be cancelled: once Schedule returns, the task runs
// unless the queue itself shuts down first.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
)

// Task is a unit of delayed work. ctx is cancelled when the queue stops.
type Task func(ctx context.Context)

type item struct {
	due  time.Time
	seq  uint64
	name string
	task Task
}

// taskHeap orders items by due time, then by scheduling order.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*item)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a delay queue of tasks.
type Queue struct {
	mu    sync.Mutex
	items taskHeap
	seq   uint64
	wake  chan struct{}

	// stopped is set once Serve has drained; later tasks are dropped.
	stopped bool

	// outstanding counts tasks scheduled but not yet finished.
	outstanding sync.WaitGroup
}

// New creates an empty Queue. Tasks only run while Serve is running.
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Schedule queues task to run after delay. A non-positive delay runs the
// task on the next Serve iteration. name is used for logging only. After
// Serve has returned, the task is dropped and Schedule reports false.
func (q *Queue) Schedule(delay time.Duration, name string, task Task) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		metrics.ScheduledDropped.Inc()
		logging.Warn().Str("task", name).Msg("scheduler stopped, task dropped")
		return false
	}
	q.outstanding.Add(1)
	q.seq++
	heap.Push(&q.items, &item{
		due:  time.Now().Add(delay),
		seq:  q.seq,
		name: name,
		task: task,
	})
	n := len(q.items)
	q.mu.Unlock()

	metrics.ScheduledExecutions.Set(float64(n))
	q.signal()
	return true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of tasks waiting for their due time.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until every scheduled task has finished or been dropped at
// shutdown. It never returns while tasks are queued and Serve is not running.
func (q *Queue) Wait() {
	q.outstanding.Wait()
}

// next pops all due items and returns them with the wait until the next one.
func (q *Queue) next(now time.Time) ([]*item, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*item
	for len(q.items) > 0 && !q.items[0].due.After(now) {
		due = append(due, heap.Pop(&q.items).(*item))
	}
	metrics.ScheduledExecutions.Set(float64(len(q.items)))
	if len(q.items) == 0 {
		return due, 0, false
	}
	return due, q.items[0].due.Sub(now), true
}

// Serve implements suture.Service. On return, queued tasks that never ran
// are dropped and logged.
func (q *Queue) Serve(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = false
	q.mu.Unlock()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var running sync.WaitGroup
	defer running.Wait()
	defer q.drain(ctx)

	for {
		due, wait, more := q.next(time.Now())
		for _, it := range due {
			running.Add(1)
			go func(it *item) {
				defer running.Done()
				defer q.outstanding.Done()
				q.run(ctx, it)
			}(it)
		}

		var timerC <-chan time.Time
		if more {
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-timerC:
		}
		if more && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

func (q *Queue) run(ctx context.Context, it *item) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Str("task", it.name).Msg("scheduled task panicked")
		}
	}()
	logging.Ctx(ctx).Debug().Str("task", it.name).Msg("running scheduled task")
	it.task(ctx)
}

func (q *Queue) drain(ctx context.Context) {
	q.mu.Lock()
	dropped := len(q.items)
	for range q.items {
		q.outstanding.Done()
	}
	q.items = nil
	q.stopped = true
	q.mu.Unlock()

	metrics.ScheduledExecutions.Set(0)
	if dropped > 0 {
		logging.Ctx(ctx).Warn().Int("dropped", dropped).Msg("scheduler stopped with pending tasks")
	}
}

// String implements fmt.Stringer for suture logging.
func (q *Queue) String() string {
	return "scheduler"
}

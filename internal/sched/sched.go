// Package sched provides cancelable delayed and periodic tasks whose callbacks
// run on a single owner goroutine.
package sched

import (
	"sync"
	"time"
)

// Task is a scheduled callback.
type Task interface {
	// Stop prevents any further run of the callback. Safe to call multiple times.
	Stop()
}

// Scheduler schedules callbacks. Callbacks never run concurrently with each other.
type Scheduler interface {
	After(d time.Duration, fn func()) Task
	Every(d time.Duration, fn func()) Task
}

// Loop is a wall-clock scheduler. Due callbacks are posted to C and must be
// executed by the goroutine that owns the scheduled state.
type Loop struct {
	posts chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop scheduler with the given post buffer.
func NewLoop(buffer int) *Loop {
	return &Loop{
		posts: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// C delivers due callbacks.
func (l *Loop) C() <-chan func() {
	return l.posts
}

// Close stops posting. Pending timers fire into nothing.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}

type loopTask struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *loopTask) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *loopTask) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// After runs fn once after d.
func (l *Loop) After(d time.Duration, fn func()) Task {
	t := &loopTask{}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, func() {
		l.post(t, fn)
	})
	t.mu.Unlock()
	return t
}

// Every runs fn every d until stopped. The first run happens after d.
func (l *Loop) Every(d time.Duration, fn func()) Task {
	t := &loopTask{}
	var arm func()
	arm = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped {
			return
		}
		t.timer = time.AfterFunc(d, func() {
			l.post(t, fn)
			arm()
		})
	}
	arm()
	return t
}

// post hands fn to the owner. The stopped flag is checked again on the owner
// goroutine so a task stopped there never runs afterwards.
func (l *Loop) post(t *loopTask, fn func()) {
	if t.isStopped() {
		return
	}
	run := func() {
		if !t.isStopped() {
			fn()
		}
	}
	select {
	case l.posts <- run:
	case <-l.done:
	}
}

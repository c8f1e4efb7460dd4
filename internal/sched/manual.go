package sched

import (
	"sort"
	"time"
)

// Manual is a virtual-clock scheduler for tests. Callbacks run synchronously
// inside Advance.
type Manual struct {
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	due     time.Duration
	every   time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() {
	t.stopped = true
}

// NewManual creates a virtual clock at zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	return m.now
}

// After runs fn once when the clock passes d from now.
func (m *Manual) After(d time.Duration, fn func()) Task {
	return m.add(d, 0, fn)
}

// Every runs fn each time the clock passes another d.
func (m *Manual) Every(d time.Duration, fn func()) Task {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, every time.Duration, fn func()) *manualTask {
	m.seq++
	t := &manualTask{due: m.now + d, every: every, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Pending returns the number of live tasks.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward, running due callbacks in time order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		if next.every > 0 {
			next.due += next.every
		} else {
			next.stopped = true
		}
		next.fn()
	}
	m.now = target
	m.compact()
}

func (m *Manual) nextDue(limit time.Duration) *manualTask {
	live := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.stopped && t.due <= limit {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].due != live[j].due {
			return live[i].due < live[j].due
		}
		return live[i].seq < live[j].seq
	})
	return live[0]
}

func (m *Manual) compact() {
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.stopped {
			kept = append(kept, t)
		}
	}
	m.tasks = kept
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vovakirdan/peerlink/internal/store"
)

// EventLog keeps buffered events in process memory.
type EventLog struct {
	mu     sync.Mutex
	nextID int64
	rooms  map[string][]*store.BufferedEvent
}

// New creates an empty in-memory event log.
func New() *EventLog {
	return &EventLog{rooms: make(map[string][]*store.BufferedEvent)}
}

func (l *EventLog) Append(_ context.Context, ev *store.BufferedEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	stored := *ev
	stored.Seq = l.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	ev.Seq = stored.Seq
	l.rooms[ev.Room] = append(l.rooms[ev.Room], &stored)
	return nil
}

func (l *EventLog) List(_ context.Context, room string) ([]*store.BufferedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.rooms[room]
	out := make([]*store.BufferedEvent, 0, len(events))
	for _, ev := range events {
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (l *EventLog) RemoveObject(_ context.Context, room, object string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.rooms[room]
	kept := events[:0]
	for _, ev := range events {
		if ev.Object != object {
			kept = append(kept, ev)
		}
	}
	l.rooms[room] = kept
	return nil
}

func (l *EventLog) DropRoom(_ context.Context, room string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, room)
	return nil
}

func (l *EventLog) Close() error { return nil }

var _ store.EventLog = (*EventLog)(nil)

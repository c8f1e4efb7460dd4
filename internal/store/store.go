package store

import (
	"context"
	"time"
)

// BufferedEvent is a room event replayed to peers that join later.
type BufferedEvent struct {
	Seq       int64
	Room      string
	Kind      string
	Object    string
	Actor     int
	Payload   []byte
	CreatedAt time.Time
}

// EventLog persists buffered room events in append order.
type EventLog interface {
	// Append stores an event at the end of the room's log and assigns its Seq.
	Append(ctx context.Context, ev *BufferedEvent) error

	// List returns the room's events in append order.
	List(ctx context.Context, room string) ([]*BufferedEvent, error)

	// RemoveObject drops every event that refers to the object.
	RemoveObject(ctx context.Context, room, object string) error

	// DropRoom forgets the room's log entirely.
	DropRoom(ctx context.Context, room string) error

	// Close releases the underlying resources.
	Close() error
}

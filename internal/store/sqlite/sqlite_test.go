package sqlite

import (
	"context"
	"testing"

	"github.com/vovakirdan/peerlink/internal/store"
	"github.com/vovakirdan/peerlink/internal/store/memory"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Both implementations must behave the same way.
func TestEventLogImplementations(t *testing.T) {
	impls := map[string]func(t *testing.T) store.EventLog{
		"sqlite": func(t *testing.T) store.EventLog { return newTestStore(t) },
		"memory": func(t *testing.T) store.EventLog { return memory.New() },
	}

	for name, build := range impls {
		t.Run(name, func(t *testing.T) {
			log := build(t)
			ctx := context.Background()

			seed := []store.BufferedEvent{
				{Room: "1.0/R1", Kind: "spawn", Object: "obj-1", Actor: 1, Payload: []byte(`{"points":10}`)},
				{Room: "1.0/R1", Kind: "spawn", Object: "obj-2", Actor: 1},
				{Room: "1.0/R1", Kind: "collect", Object: "obj-1", Actor: 2},
				{Room: "1.0/R2", Kind: "spawn", Object: "obj-9", Actor: 1},
			}
			for i := range seed {
				ev := seed[i]
				if err := log.Append(ctx, &ev); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
				if ev.Seq == 0 {
					t.Fatalf("append %d: seq not assigned", i)
				}
			}

			events, err := log.List(ctx, "1.0/R1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(events) != 3 {
				t.Fatalf("expected 3 events, got %d", len(events))
			}
			if events[0].Object != "obj-1" || events[2].Kind != "collect" {
				t.Fatalf("events out of order: %+v", events)
			}
			if string(events[0].Payload) != `{"points":10}` {
				t.Fatalf("payload lost: %q", events[0].Payload)
			}

			if err := log.RemoveObject(ctx, "1.0/R1", "obj-1"); err != nil {
				t.Fatalf("remove object: %v", err)
			}
			events, _ = log.List(ctx, "1.0/R1")
			if len(events) != 1 || events[0].Object != "obj-2" {
				t.Fatalf("expected only obj-2 left, got %+v", events)
			}

			if err := log.DropRoom(ctx, "1.0/R1"); err != nil {
				t.Fatalf("drop room: %v", err)
			}
			events, _ = log.List(ctx, "1.0/R1")
			if len(events) != 0 {
				t.Fatalf("expected empty room log, got %d", len(events))
			}

			other, _ := log.List(ctx, "1.0/R2")
			if len(other) != 1 {
				t.Fatalf("other room affected: %+v", other)
			}
		})
	}
}

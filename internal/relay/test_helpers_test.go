package relay

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/peerlink/internal/proto"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustError(t *testing.T, ch <-chan *Event, code string) {
	t.Helper()

	ev := mustEvent(t, ch, EventError)
	if ev.Error == nil || ev.Error.Code != code {
		t.Fatalf("expected %s error, got %+v", code, ev.Error)
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil, nil, nil)
	go hub.Run(ctx)
	return hub
}

// connect registers a client and completes the hello exchange.
func connect(t *testing.T, hub *Hub, user, version string) *Client {
	t.Helper()

	c := NewClient(user + "-conn")
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", user, err)
	}
	c.Commands <- &Command{Kind: CommandHello, Hello: proto.HelloData{User: user, Version: version}}
	mustEvent(t, c.Events, EventWelcome)
	return c
}

func createRoom(t *testing.T, c *Client, name string, maxPlayers int) proto.RoomSnapshot {
	t.Helper()

	c.Commands <- &Command{
		Kind: CommandCreateRoom,
		Room: proto.CreateRoomData{Room: name, MaxPlayers: maxPlayers, Visible: true, Open: true},
	}
	return mustEvent(t, c.Events, EventRoomJoined).Data.(proto.RoomSnapshot)
}

func joinRoom(t *testing.T, c *Client, name string) proto.RoomSnapshot {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: proto.CreateRoomData{Room: name}}
	return mustEvent(t, c.Events, EventRoomJoined).Data.(proto.RoomSnapshot)
}

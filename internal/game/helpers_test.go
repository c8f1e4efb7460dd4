package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/sched"
)

type fakeTransport struct {
	sent        []proto.Inbound
	hello       *proto.HelloData
	disconnects int
	frames      chan proto.Outbound
}

func (f *fakeTransport) Connect(hello proto.HelloData) error {
	f.hello = &hello
	return nil
}

func (f *fakeTransport) Send(in proto.Inbound) error {
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.disconnects++
	return nil
}

func (f *fakeTransport) Frames() <-chan proto.Outbound {
	return f.frames
}

func (f *fakeTransport) types() []string {
	out := make([]string, 0, len(f.sent))
	for _, in := range f.sent {
		out = append(out, in.Type)
	}
	return out
}

// sentOf decodes every sent frame of the given type.
func sentOf[T any](t *testing.T, f *fakeTransport, typ string) []T {
	t.Helper()
	var out []T
	for _, in := range f.sent {
		if in.Type != typ {
			continue
		}
		var v T
		require.NoError(t, in.Decode(&v))
		out = append(out, v)
	}
	return out
}

func testPeerConfig() config.PeerConfig {
	cfg := config.Default().Peer
	cfg.SettleDelay = 500 * time.Millisecond
	cfg.SpawnPoints = []config.Point{{X: 0, Y: 1, Z: 0}}
	cfg.Objects.Target = 0
	return cfg
}

func newTestGame(t *testing.T, cfg config.PeerConfig) (*Game, *fakeTransport, *sched.Manual) {
	t.Helper()
	tr := &fakeTransport{frames: make(chan proto.Outbound)}
	clock := sched.NewManual()
	g := New(cfg, tr, clock, rand.New(rand.NewPCG(7, 11)), nil)
	return g, tr, clock
}

func frame(t *testing.T, event string, data any) proto.Outbound {
	t.Helper()
	out, err := proto.NewEvent(event, data)
	require.NoError(t, err)
	return out
}

// connect drives the game into the lobby.
func connect(t *testing.T, g *Game) {
	t.Helper()
	require.NoError(t, g.Connect("alice"))
	g.Handle(frame(t, proto.EventWelcome, proto.WelcomeData{ConnectionID: "c1", User: "alice"}))
	g.Handle(frame(t, proto.EventLobbyJoined, struct{}{}))
}

func snapshot(actor, master int, members ...int) proto.RoomSnapshot {
	snap := proto.RoomSnapshot{
		Room:     proto.RoomSummary{Name: "arena", PlayerCount: len(members), MaxPlayers: 4, Visible: true, Open: true},
		ActorID:  actor,
		MasterID: master,
	}
	for _, id := range members {
		snap.Members = append(snap.Members, proto.Member{ActorID: id, Nickname: "p", Master: id == master})
	}
	return snap
}

func drain(g *Game) []Event {
	var out []Event
	for {
		select {
		case ev := <-g.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

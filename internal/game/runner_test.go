package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/peer"
	"github.com/vovakirdan/peerlink/internal/relay"
	"github.com/vovakirdan/peerlink/internal/transport/loopback"
)

func startRelay(t *testing.T) *relay.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(nil, nil, nil)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func startPeer(t *testing.T, hub *relay.Hub, cfg config.PeerConfig, nickname string) *Runner {
	t.Helper()
	tr := loopback.New(hub, nil)
	r := NewRunner(cfg, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		tr.Close()
	})

	require.NoError(t, r.Connect(context.Background(), nickname))
	waitFor(t, r, func(st Status) bool { return st.Scope == peer.ScopeIn })
	return r
}

func waitFor(t *testing.T, r *Runner, cond func(Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := r.Status(context.Background())
		return err == nil && cond(st)
	}, 3*time.Second, 10*time.Millisecond)
}

func integrationConfig() config.PeerConfig {
	cfg := config.Default().Peer
	cfg.FrameRate = 50
	cfg.RefreshDelay = 10 * time.Millisecond
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.Objects.Target = 3
	cfg.Objects.Interval = 20 * time.Millisecond
	// Keep objects out of reach of the spawn points.
	cfg.Objects.Points = []config.Point{{X: 50, Y: 1, Z: 50}, {X: 60, Y: 1, Z: 60}}
	return cfg
}

func TestTwoPeersMasterMigration(t *testing.T) {
	hub := startRelay(t)
	cfg := integrationConfig()
	ctx := context.Background()

	alice := startPeer(t, hub, cfg, "alice")
	bob := startPeer(t, hub, cfg, "bob")

	require.NoError(t, alice.CreateRoom(ctx, "arena", 4))
	waitFor(t, alice, func(st Status) bool {
		return st.RoomState == peer.RoomJoined && st.Master && st.Objects == 3
	})

	require.Eventually(t, func() bool {
		rooms, err := bob.RefreshRooms(ctx)
		return err == nil && len(rooms) == 1 && rooms[0].Name == "arena" && rooms[0].PlayerCount == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.JoinRoom(ctx, "arena"))
	waitFor(t, bob, func(st Status) bool {
		return st.RoomState == peer.RoomJoined && st.Room.ActorID == 2 && !st.Master && st.Objects == 3
	})

	require.NoError(t, alice.StartSession(ctx))
	waitFor(t, bob, func(st Status) bool { return st.Player != 0 && st.Entities == 2 })

	require.NoError(t, alice.LeaveRoom(ctx))
	waitFor(t, bob, func(st Status) bool {
		return st.Master && st.Room.MasterID == 2 && len(st.Members) == 1 && st.Entities == 1
	})
	waitFor(t, alice, func(st Status) bool { return st.RoomState == peer.RoomNone && st.Scope == peer.ScopeIn })
}

func TestJoinRandomWithoutRooms(t *testing.T) {
	hub := startRelay(t)
	alice := startPeer(t, hub, integrationConfig(), "alice")

	require.NoError(t, alice.JoinRandom(context.Background()))
	waitFor(t, alice, func(st Status) bool { return st.RoomState == peer.RoomNone })
	for {
		select {
		case ev := <-alice.Events():
			if ev.Kind == EventError {
				require.ErrorIs(t, ev.Err, peer.ErrNoRoomsAvailable)
				return
			}
		case <-time.After(3 * time.Second):
			t.Fatal("no error event for join_random")
		}
	}
}

func TestDoAfterStop(t *testing.T) {
	hub := startRelay(t)
	tr := loopback.New(hub, nil)
	defer tr.Close()
	r := NewRunner(integrationConfig(), tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Run(ctx), context.Canceled)
	require.ErrorIs(t, r.Do(context.Background(), func(*Game) {}), ErrStopped)
}

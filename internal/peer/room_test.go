package peer

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/peerlink/internal/proto"
	"pgregory.net/rapid"
)

func newTestRoom(connected, inLobby bool) (*Room, *fakeTransport, *fakeConn, *fakeLobby) {
	tr := newFakeTransport()
	conn := &fakeConn{connected: connected}
	lobby := &fakeLobby{in: inLobby}
	return NewRoom(tr, conn, lobby, 4, nil), tr, conn, lobby
}

func snapshot(name string, actor, master int, actors ...int) proto.RoomSnapshot {
	snap := proto.RoomSnapshot{
		Room:     proto.RoomSummary{Name: name, PlayerCount: len(actors), MaxPlayers: 4, Visible: true, Open: true},
		ActorID:  actor,
		MasterID: master,
	}
	for _, a := range actors {
		snap.Members = append(snap.Members, proto.Member{ActorID: a, Nickname: string(rune('a' + a - 1)), Master: a == master})
	}
	return snap
}

func TestRoomCreateWhileDisconnected(t *testing.T) {
	r, tr, _, _ := newTestRoom(false, true)

	err := r.Create("R1", 4)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, tr.sent)
	assert.Equal(t, RoomNone, r.State())
}

func TestRoomCreateValidation(t *testing.T) {
	r, tr, _, lobby := newTestRoom(true, false)

	require.ErrorIs(t, r.Create("", 4), ErrInvalidRoomName)
	require.ErrorIs(t, r.Create("R1", 4), ErrNotInDirectoryScope)
	assert.Empty(t, tr.sent)

	lobby.in = true
	require.NoError(t, r.Create("R1", 0))
	assert.Equal(t, RoomCreating, r.State())

	var req proto.CreateRoomData
	require.NoError(t, tr.last().Decode(&req))
	assert.Equal(t, proto.CreateRoomData{Room: "R1", MaxPlayers: 4, Visible: true, Open: true}, req)

	require.ErrorIs(t, r.Join("R2"), ErrBusy)
}

func TestRoomJoinFailures(t *testing.T) {
	r, _, _, _ := newTestRoom(true, true)

	require.ErrorIs(t, r.Join(""), ErrInvalidRoomName)

	require.NoError(t, r.Join("ghost"))
	err := r.HandleError(&proto.Error{Code: proto.ErrCodeRoomNotFound, Msg: "room not found", Op: proto.InboundTypeJoinRoom})
	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, RoomNone, r.State())

	require.NoError(t, r.Join("packed"))
	err = r.HandleError(&proto.Error{Code: proto.ErrCodeRoomFull, Op: proto.InboundTypeJoinRoom})
	require.ErrorIs(t, err, ErrRoomFull)

	require.NoError(t, r.JoinRandom())
	err = r.HandleError(&proto.Error{Code: proto.ErrCodeNoRoomsAvailable, Op: proto.InboundTypeJoinRandom})
	require.ErrorIs(t, err, ErrNoRoomsAvailable)
	assert.Equal(t, RoomNone, r.State())
}

func TestRoomSnapshotAndMasterMigration(t *testing.T) {
	r, _, _, _ := newTestRoom(true, true)

	require.NoError(t, r.Create("R1", 4))
	r.HandleSnapshot(snapshot("R1", 1, 1, 1))
	assert.True(t, r.IsMaster())

	r.HandleMemberJoined(proto.MemberData{Room: "R1", ActorID: 2, Nickname: "bob"})
	info := r.Info()
	assert.Equal(t, 2, info.PlayerCount)
	assert.Equal(t, 1, info.MasterID)

	// Seen from actor 2: actor 1 leaves and actor 2 becomes master.
	other, _, _, _ := newTestRoom(true, true)
	require.NoError(t, other.Join("R1"))
	other.HandleSnapshot(snapshot("R1", 2, 1, 1, 2))
	assert.False(t, other.IsMaster())

	changed := other.HandleMemberLeft(proto.MemberData{Room: "R1", ActorID: 1, Nickname: "a"})
	assert.True(t, changed)
	assert.True(t, other.IsMaster())
	assert.Equal(t, 2, other.Info().MasterID)
	assert.Equal(t, 1, other.Info().PlayerCount)

	// The relay's confirmation agrees and changes nothing.
	assert.False(t, other.HandleMasterChanged(proto.MemberData{Room: "R1", ActorID: 2}))
}

func TestRoomMembersSortedWithColours(t *testing.T) {
	r, _, _, _ := newTestRoom(true, true)
	r.HandleSnapshot(snapshot("R1", 3, 2, 9, 2, 3))

	members := r.Members()
	require.Len(t, members, 3)
	assert.Equal(t, []int{2, 3, 9}, []int{members[0].ActorID, members[1].ActorID, members[2].ActorID})
	assert.True(t, members[0].Master)
	assert.False(t, members[1].Master)
	assert.Equal(t, 9%PaletteSize, members[2].Color)
}

func TestRoomMasterOnlyOperations(t *testing.T) {
	r, tr, conn, _ := newTestRoom(true, true)

	require.ErrorIs(t, r.StartSession(), ErrNotInRoom)

	r.HandleSnapshot(snapshot("R1", 2, 1, 1, 2))
	require.ErrorIs(t, r.StartSession(), ErrNotAuthorized)
	require.ErrorIs(t, r.SetOpen(false), ErrNotAuthorized)

	r.HandleMemberLeft(proto.MemberData{ActorID: 1})
	require.NoError(t, r.StartSession())
	assert.Equal(t, proto.InboundTypeStartSession, tr.last().Type)

	require.NoError(t, r.SetVisible(false))
	var props proto.RoomPropsData
	require.NoError(t, tr.last().Decode(&props))
	require.NotNil(t, props.Visible)
	assert.False(t, *props.Visible)
	assert.Nil(t, props.Open)

	conn.connected = false
	require.ErrorIs(t, r.StartSession(), ErrNotConnected)
}

func TestRoomLeave(t *testing.T) {
	r, tr, _, _ := newTestRoom(true, true)

	require.ErrorIs(t, r.Leave(), ErrNotInRoom)

	r.HandleSnapshot(snapshot("R1", 1, 1, 1))
	require.NoError(t, r.Leave())
	assert.Equal(t, RoomLeaving, r.State())
	assert.Equal(t, proto.InboundTypeLeaveRoom, tr.last().Type)

	r.Reset()
	assert.Equal(t, RoomNone, r.State())
	assert.Empty(t, r.Members())
	assert.Equal(t, 0, r.ActorID())
}

func TestRoomLeaveRejected(t *testing.T) {
	r, _, _, _ := newTestRoom(true, true)
	r.HandleSnapshot(snapshot("R1", 1, 1, 1, 2))

	require.NoError(t, r.Leave())
	err := r.HandleError(&proto.Error{Op: proto.InboundTypeLeaveRoom, Code: proto.ErrCodeRateLimited, Msg: "slow down"})
	require.Error(t, err)
	assert.Equal(t, RoomJoined, r.State(), "a throttled leave keeps the membership")
	assert.True(t, r.IsMaster())
	require.NoError(t, r.Leave(), "leave can be retried")

	err = r.HandleError(&proto.Error{Op: proto.InboundTypeLeaveRoom, Code: proto.ErrCodeNotInRoom, Msg: "not in room"})
	require.ErrorIs(t, err, ErrNotInRoom)
	assert.Equal(t, RoomNone, r.State())
	assert.Empty(t, r.Members())
}

// Exactly one member holds the master flag, and after the master leaves it is
// always the lowest remaining actor.
func TestRoomPropertyMasterInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r, _, _, _ := newTestRoom(true, true)
		r.HandleSnapshot(snapshot("R1", 3, 1, 1, 2, 3))

		const local = 3
		next := 4
		present := map[int]bool{1: true, 2: true, 3: true}
		// The local actor stays, so the room never empties.
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for range steps {
			if rapid.Bool().Draw(rt, "join") || len(present) == 1 {
				r.HandleMemberJoined(proto.MemberData{ActorID: next, Nickname: "p"})
				present[next] = true
				next++
				continue
			}
			candidates := make([]int, 0, len(present))
			for id := range present {
				if id != local {
					candidates = append(candidates, id)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			sort.Ints(candidates)
			victim := rapid.SampledFrom(candidates).Draw(rt, "victim")
			wasMaster := victim == r.MasterID()
			r.HandleMemberLeft(proto.MemberData{ActorID: victim})
			delete(present, victim)

			if wasMaster {
				lowest := 0
				for id := range present {
					if lowest == 0 || id < lowest {
						lowest = id
					}
				}
				if r.MasterID() != lowest {
					rt.Fatalf("master %d, want lowest %d", r.MasterID(), lowest)
				}
			}
		}

		masters := 0
		for _, m := range r.Members() {
			if m.Master {
				masters++
			}
		}
		if masters != 1 {
			rt.Fatalf("expected exactly one master, got %d", masters)
		}
		if r.Info().PlayerCount != len(present) {
			rt.Fatalf("player count %d, want %d", r.Info().PlayerCount, len(present))
		}
	})
}

func TestRoomPropertyMasterLeavesFirst(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(rt, "members")
		actors := make([]int, 0, n)
		for i := 1; i <= n; i++ {
			actors = append(actors, i)
		}
		r, _, _, _ := newTestRoom(true, true)
		r.HandleSnapshot(snapshot("R1", n, 1, actors...))

		order := rapid.Permutation(actors[:n-1]).Draw(rt, "order")
		remaining := make(map[int]bool, n)
		for _, a := range actors {
			remaining[a] = true
		}
		for _, a := range order {
			r.HandleMemberLeft(proto.MemberData{ActorID: a})
			delete(remaining, a)
			lowest := n
			for id := range remaining {
				lowest = min(lowest, id)
			}
			if r.MasterID() != lowest {
				rt.Fatalf("after %d left master is %d, want %d", a, r.MasterID(), lowest)
			}
		}
		if !r.IsMaster() {
			rt.Fatalf("last actor standing must be master")
		}
	})
}

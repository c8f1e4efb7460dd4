package game

import (
	"github.com/vovakirdan/peerlink/internal/peer"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
)

// EventKind identifies an entry of the peer event stream.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventRoomList
	EventRoomJoined
	EventRoomLeft
	EventMembersChanged
	EventMasterChanged
	EventSessionStarted
	EventPlayerSpawned
	EventReturnToLobby
	EventObjectsChanged
	EventScoreChanged
	EventError
)

var eventNames = [...]string{
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventRoomList:       "room_list",
	EventRoomJoined:     "room_joined",
	EventRoomLeft:       "room_left",
	EventMembersChanged: "members_changed",
	EventMasterChanged:  "master_changed",
	EventSessionStarted: "session_started",
	EventPlayerSpawned:  "player_spawned",
	EventReturnToLobby:  "return_to_lobby",
	EventObjectsChanged: "objects_changed",
	EventScoreChanged:   "score_changed",
	EventError:          "error",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is what the UI consumes. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Room    peer.RoomInfo
	Rooms   []proto.RoomSummary
	Members []peer.Member
	Master  int
	Entity  replication.EntityID
	Score   int
	Objects int
	Scene   string
	Err     error
}

package relay

import "github.com/vovakirdan/peerlink/internal/proto"

// EventKind is a notification the relay emits to peers.
type EventKind int

const (
	// EventWelcome confirms the hello; the peer is connected to the master server.
	EventWelcome EventKind = iota
	// EventLobbyJoined confirms the directory subscription.
	EventLobbyJoined
	// EventLobbyLeft confirms the directory subscription ended.
	EventLobbyLeft
	// EventRoomList delivers a directory update batch.
	EventRoomList
	// EventRoomJoined delivers the room snapshot to the joining peer.
	EventRoomJoined
	// EventRoomLeft confirms the peer left its room.
	EventRoomLeft
	// EventRoomUpdated notifies members about changed room flags.
	EventRoomUpdated
	// EventMemberJoined notifies members about a new actor.
	EventMemberJoined
	// EventMemberLeft notifies members about a departed actor.
	EventMemberLeft
	// EventMasterChanged notifies members about a new master.
	EventMasterChanged
	// EventSessionStarted notifies members that the master started the session.
	EventSessionStarted
	// EventState relays an entity state sample.
	EventState
	// EventRaised relays a room event.
	EventRaised
	// EventError notifies the peer about a domain error.
	EventError
)

var eventNames = map[EventKind]string{
	EventWelcome:        proto.EventWelcome,
	EventLobbyJoined:    proto.EventLobbyJoined,
	EventLobbyLeft:      proto.EventLobbyLeft,
	EventRoomList:       proto.EventRoomList,
	EventRoomJoined:     proto.EventRoomJoined,
	EventRoomLeft:       proto.EventRoomLeft,
	EventRoomUpdated:    proto.EventRoomUpdated,
	EventMemberJoined:   proto.EventMemberJoined,
	EventMemberLeft:     proto.EventMemberLeft,
	EventMasterChanged:  proto.EventMasterChanged,
	EventSessionStarted: proto.EventSessionStarted,
	EventState:          proto.EventState,
	EventRaised:         proto.EventRaised,
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	if k == EventError {
		return proto.OutboundTypeError
	}
	return "unknown"
}

// Event is sent to peers to describe what happened in the relay.
type Event struct {
	Kind  EventKind
	Room  string
	Data  any // one of the proto payload types
	Error *CoreError
}

// control reports whether losing the event would desynchronize the peer.
func (e *Event) control() bool {
	return e.Kind != EventState
}

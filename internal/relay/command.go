package relay

import "github.com/vovakirdan/peerlink/internal/proto"

// CommandKind describes what the peer wants to do.
type CommandKind int

const (
	// CommandHello introduces the peer and binds its nickname and game version.
	CommandHello CommandKind = iota
	// CommandJoinLobby subscribes the peer to room directory batches.
	CommandJoinLobby
	// CommandLeaveLobby stops directory batches.
	CommandLeaveLobby
	// CommandCreateRoom creates a room and joins it as master.
	CommandCreateRoom
	// CommandJoinRoom joins a named room.
	CommandJoinRoom
	// CommandJoinRandom joins any open, visible room with a free slot.
	CommandJoinRandom
	// CommandLeaveRoom leaves the current room.
	CommandLeaveRoom
	// CommandStartSession marks the room as started (master only).
	CommandStartSession
	// CommandSetRoomProps changes open/visible flags (master only).
	CommandSetRoomProps
	// CommandState relays an entity state sample to the other members.
	CommandState
	// CommandRaise relays a room event, optionally buffering it for late joiners.
	CommandRaise
)

// Command represents an action requested by a peer.
type Command struct {
	Kind   CommandKind
	Hello  proto.HelloData
	Room   proto.CreateRoomData
	Props  proto.RoomPropsData
	State  proto.StateData
	Raise  proto.RaiseData
	client *Client
}

var commandOps = map[CommandKind]string{
	CommandHello:        proto.InboundTypeHello,
	CommandJoinLobby:    proto.InboundTypeJoinLobby,
	CommandLeaveLobby:   proto.InboundTypeLeaveLobby,
	CommandCreateRoom:   proto.InboundTypeCreateRoom,
	CommandJoinRoom:     proto.InboundTypeJoinRoom,
	CommandJoinRandom:   proto.InboundTypeJoinRandom,
	CommandLeaveRoom:    proto.InboundTypeLeaveRoom,
	CommandStartSession: proto.InboundTypeStartSession,
	CommandSetRoomProps: proto.InboundTypeSetRoomProps,
	CommandState:        proto.InboundTypeState,
	CommandRaise:        proto.InboundTypeRaise,
}

// Op returns the wire name of the command, used to tag errors.
func (k CommandKind) Op() string {
	return commandOps[k]
}

package proto

import (
	"encoding/json"
	"fmt"
)

// Inbound is the envelope for messages coming from a peer.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to a peer.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello        = "hello"
	InboundTypeJoinLobby    = "join_lobby"
	InboundTypeLeaveLobby   = "leave_lobby"
	InboundTypeCreateRoom   = "create_room"
	InboundTypeJoinRoom     = "join_room"
	InboundTypeJoinRandom   = "join_random"
	InboundTypeLeaveRoom    = "leave_room"
	InboundTypeStartSession = "start_session"
	InboundTypeSetRoomProps = "set_room_props"
	InboundTypeState        = "state"
	InboundTypeRaise        = "raise"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventWelcome        = "welcome"
	EventDisconnected   = "disconnected"
	EventLobbyJoined    = "lobby_joined"
	EventLobbyLeft      = "lobby_left"
	EventRoomList       = "room_list"
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventRoomUpdated    = "room_updated"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventMasterChanged  = "master_changed"
	EventSessionStarted = "session_started"
	EventState          = "state"
	EventRaised         = "raised"
)

// Raised event kinds.
const (
	RaiseSpawn   = "spawn"
	RaiseCollect = "collect"
	RaiseDestroy = "destroy"
)

// Disconnect causes.
const (
	CauseClientDisconnect = "client_disconnect"
	CauseServerDisconnect = "server_disconnect"
	CauseTransportError   = "transport_error"
	CauseRejected         = "rejected"
)

// HelloData is sent by the peer to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Version  string `json:"version"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// WelcomeData confirms the peer is connected to the master server.
type WelcomeData struct {
	ConnectionID string `json:"connection_id"`
	User         string `json:"user"`
}

// DisconnectedData is synthesized by transports when the link drops.
type DisconnectedData struct {
	Cause  string `json:"cause"`
	Reason string `json:"reason,omitempty"`
}

// CreateRoomData requests a new room.
type CreateRoomData struct {
	Room       string `json:"room"`
	MaxPlayers int    `json:"max_players"`
	Visible    bool   `json:"visible"`
	Open       bool   `json:"open"`
}

// JoinData requests to join a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// RoomPropsData changes room flags. Nil fields are left untouched.
type RoomPropsData struct {
	Open    *bool `json:"open,omitempty"`
	Visible *bool `json:"visible,omitempty"`
}

// RoomSummary is one advertised room in a directory batch.
type RoomSummary struct {
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	Visible     bool   `json:"visible"`
	Open        bool   `json:"open"`
	Removed     bool   `json:"removed_from_list,omitempty"`
}

// RoomListData is an ordered directory update batch.
type RoomListData struct {
	Rooms []RoomSummary `json:"rooms"`
}

// Member describes one actor in a room.
type Member struct {
	ActorID  int    `json:"actor_id"`
	Nickname string `json:"nickname"`
	Master   bool   `json:"master,omitempty"`
}

// RoomSnapshot is delivered once, atomically, when a room is joined.
type RoomSnapshot struct {
	Room     RoomSummary `json:"room"`
	ActorID  int         `json:"actor_id"`
	MasterID int         `json:"master_id"`
	Members  []Member    `json:"members"`
	Created  bool        `json:"created,omitempty"`
	Started  bool        `json:"started,omitempty"`
	Buffered []RaiseData `json:"buffered,omitempty"`
}

// MemberData is a membership delta.
type MemberData struct {
	Room     string `json:"room"`
	ActorID  int    `json:"actor_id"`
	Nickname string `json:"nickname"`
}

// SessionStartedData announces that the master started the game session.
type SessionStartedData struct {
	Room string `json:"room"`
}

// StateData is one entity state sample.
type StateData struct {
	Entity   uint32     `json:"entity"`
	Owner    int        `json:"owner,omitempty"`
	Seq      uint64     `json:"seq"`
	Position [3]float64 `json:"pos"`
	Rotation [4]float64 `json:"rot"`
	Velocity [3]float64 `json:"vel"`
}

// RaiseData is a broadcast room event.
type RaiseData struct {
	Kind     string          `json:"kind"`
	Object   string          `json:"object"`
	Actor    int             `json:"actor,omitempty"`
	Buffered bool            `json:"buffered,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// SpawnPayload is carried by spawn events.
type SpawnPayload struct {
	Position [3]float64 `json:"pos"`
	Points   int        `json:"points"`
}

// CollectPayload is carried by collect events.
type CollectPayload struct {
	Collector int `json:"collector"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Op   string `json:"op,omitempty"`
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Code)
}

// NewInbound marshals data into an inbound envelope.
func NewInbound(typ string, data any) (Inbound, error) {
	if data == nil {
		return Inbound{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Inbound{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return Inbound{Type: typ, Data: raw}, nil
}

// NewEvent marshals data into an outbound event envelope.
func NewEvent(event string, data any) (Outbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Outbound{}, fmt.Errorf("marshal %s: %w", event, err)
	}
	return Outbound{Type: OutboundTypeEvent, Event: event, Data: raw}, nil
}

// NewError builds an outbound error envelope.
func NewError(op, code, msg string) Outbound {
	return Outbound{Type: OutboundTypeError, Error: &Error{Code: code, Msg: msg, Op: op}}
}

// Decode unmarshals the envelope payload into v.
func (o Outbound) Decode(v any) error {
	if len(o.Data) == 0 {
		return fmt.Errorf("%s: empty payload", o.Event)
	}
	if err := json.Unmarshal(o.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", o.Event, err)
	}
	return nil
}

// Decode unmarshals the envelope payload into v.
func (i Inbound) Decode(v any) error {
	if len(i.Data) == 0 {
		return fmt.Errorf("%s: empty payload", i.Type)
	}
	if err := json.Unmarshal(i.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", i.Type, err)
	}
	return nil
}

package relay

import (
	"github.com/vovakirdan/peerlink/internal/proto"
)

var inboundKinds = map[string]CommandKind{
	proto.InboundTypeHello:        CommandHello,
	proto.InboundTypeJoinLobby:    CommandJoinLobby,
	proto.InboundTypeLeaveLobby:   CommandLeaveLobby,
	proto.InboundTypeCreateRoom:   CommandCreateRoom,
	proto.InboundTypeJoinRoom:     CommandJoinRoom,
	proto.InboundTypeJoinRandom:   CommandJoinRandom,
	proto.InboundTypeLeaveRoom:    CommandLeaveRoom,
	proto.InboundTypeStartSession: CommandStartSession,
	proto.InboundTypeSetRoomProps: CommandSetRoomProps,
	proto.InboundTypeState:        CommandState,
	proto.InboundTypeRaise:        CommandRaise,
}

// DecodeInbound maps a wire frame to a hub command. A non-nil proto error
// should be returned to the peer; the connection stays usable.
func DecodeInbound(inbound proto.Inbound) (*Command, *proto.Error) {
	kind, ok := inboundKinds[inbound.Type]
	if !ok {
		return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "unknown message type", Op: inbound.Type}
	}

	cmd := &Command{Kind: kind}
	var err error
	switch kind {
	case CommandHello:
		err = inbound.Decode(&cmd.Hello)
	case CommandCreateRoom:
		err = inbound.Decode(&cmd.Room)
	case CommandJoinRoom:
		var join proto.JoinData
		err = inbound.Decode(&join)
		cmd.Room.Room = join.Room
	case CommandSetRoomProps:
		err = inbound.Decode(&cmd.Props)
	case CommandState:
		err = inbound.Decode(&cmd.State)
	case CommandRaise:
		err = inbound.Decode(&cmd.Raise)
	}
	if err != nil {
		return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: err.Error(), Op: inbound.Type}
	}
	return cmd, nil
}

// EncodeEvent maps a hub event to its wire frame.
func EncodeEvent(event *Event) (proto.Outbound, error) {
	if event.Kind == EventError {
		if event.Error == nil {
			return proto.NewError("", "unknown", "unknown error"), nil
		}
		return proto.Outbound{Type: proto.OutboundTypeError, Error: event.Error.Proto()}, nil
	}
	data := event.Data
	if data == nil {
		data = struct{}{}
	}
	return proto.NewEvent(event.Kind.String(), data)
}

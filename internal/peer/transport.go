package peer

import "github.com/vovakirdan/peerlink/internal/proto"

// Sender pushes frames to the relay.
type Sender interface {
	Send(in proto.Inbound) error
}

// Transport is a link to the relay. Connect returns once the attempt is
// underway; the outcome arrives on Frames as a welcome event, an error, or a
// synthesized disconnected event. Frames stays open across reconnects.
type Transport interface {
	Sender
	Connect(hello proto.HelloData) error
	Disconnect() error
	Frames() <-chan proto.Outbound
}

func send(s Sender, typ string, data any) error {
	in, err := proto.NewInbound(typ, data)
	if err != nil {
		return err
	}
	return s.Send(in)
}

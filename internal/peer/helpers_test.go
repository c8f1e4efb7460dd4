package peer

import (
	"errors"

	"github.com/vovakirdan/peerlink/internal/proto"
)

type fakeTransport struct {
	sent        []proto.Inbound
	hello       *proto.HelloData
	connectErr  error
	sendErr     error
	disconnects int
	frames      chan proto.Outbound
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan proto.Outbound, 16)}
}

func (f *fakeTransport) Connect(hello proto.HelloData) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.hello = &hello
	return nil
}

func (f *fakeTransport) Send(in proto.Inbound) error {
	if f.sendErr != nil {
		return f.sendErr
	}
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

func (f *fakeTransport) last() proto.Inbound {
	if len(f.sent) == 0 {
		return proto.Inbound{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeConn struct{ connected bool }

func (c *fakeConn) Connected() bool { return c.connected }

type fakeLobby struct{ in bool }

func (l *fakeLobby) InScope() bool { return l.in }

var errDial = errors.New("dial refused")

// Package loopback links a peer to an in-process relay hub. Frames still go
// through the wire codec, so behaviour matches the websocket transport.
package loopback

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/relay"
)

var (
	ErrNotConnected     = errors.New("loopback: not connected")
	ErrAlreadyConnected = errors.New("loopback: already connected")
)

const frameBuffer = 256

type link struct {
	client  *relay.Client
	closing atomic.Bool
}

// Transport is a peer transport backed by a relay.Hub in the same process.
type Transport struct {
	hub    *relay.Hub
	frames chan proto.Outbound
	closed chan struct{}
	once   sync.Once
	log    *zerolog.Logger

	mu      sync.Mutex
	current *link
}

// New creates a transport bound to the hub.
func New(hub *relay.Hub, logger *zerolog.Logger) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Transport{
		hub:    hub,
		frames: make(chan proto.Outbound, frameBuffer),
		closed: make(chan struct{}),
		log:    logger,
	}
}

// Frames delivers relay frames and synthesized disconnects.
func (t *Transport) Frames() <-chan proto.Outbound {
	return t.frames
}

// Connect registers a fresh relay client and sends the hello.
func (t *Transport) Connect(hello proto.HelloData) error {
	t.mu.Lock()
	if t.current != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	l := &link{client: relay.NewClient(uuid.NewString())}
	if err := t.hub.RegisterClient(l.client); err != nil {
		t.mu.Unlock()
		return err
	}
	t.current = l
	t.mu.Unlock()

	go t.pump(l)

	in, err := proto.NewInbound(proto.InboundTypeHello, hello)
	if err != nil {
		return err
	}
	return t.Send(in)
}

// Send decodes the frame and hands it to the hub. Malformed frames are
// answered with an error frame, as the relay would do.
func (t *Transport) Send(in proto.Inbound) error {
	t.mu.Lock()
	l := t.current
	t.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	cmd, protoErr := relay.DecodeInbound(in)
	if protoErr != nil {
		t.deliver(proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr})
		return nil
	}
	select {
	case l.client.Commands <- cmd:
		return nil
	case <-l.client.Done():
		return ErrNotConnected
	}
}

// Disconnect releases the relay client. The disconnected frame follows once
// the hub has let go of it.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	l := t.current
	t.mu.Unlock()
	if l == nil {
		return nil
	}
	l.closing.Store(true)
	t.hub.UnregisterClient(l.client)
	return nil
}

// Close stops delivering frames.
func (t *Transport) Close() {
	t.once.Do(func() { close(t.closed) })
	_ = t.Disconnect()
}

func (t *Transport) pump(l *link) {
	for ev := range l.client.Events {
		out, err := relay.EncodeEvent(ev)
		if err != nil {
			t.log.Error().Err(err).Str("event", ev.Kind.String()).Msg("encode event")
			continue
		}
		if !t.deliver(out) {
			return
		}
	}

	t.mu.Lock()
	if t.current == l {
		t.current = nil
	}
	t.mu.Unlock()

	cause := proto.CauseServerDisconnect
	if l.closing.Load() {
		cause = proto.CauseClientDisconnect
	}
	gone, _ := proto.NewEvent(proto.EventDisconnected, proto.DisconnectedData{Cause: cause})
	t.deliver(gone)
}

func (t *Transport) deliver(out proto.Outbound) bool {
	select {
	case t.frames <- out:
		return true
	case <-t.closed:
		return false
	}
}

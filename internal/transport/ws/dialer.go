// Package ws is the peer side of the relay websocket protocol.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
)

var (
	ErrNotConnected     = errors.New("ws: not connected")
	ErrAlreadyConnected = errors.New("ws: already connected")
)

const frameBuffer = 256

// Options tune the dialer.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	HTTPClient   *http.Client
}

type conn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	closing atomic.Bool
	ready   chan struct{}
}

// Transport dials the relay over a websocket.
type Transport struct {
	url    string
	opts   Options
	frames chan proto.Outbound
	log    *zerolog.Logger

	mu      sync.Mutex
	current *conn
}

// New creates a transport for the relay URL, e.g. ws://localhost:8080/ws.
func New(url string, opts Options, logger *zerolog.Logger) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Transport{
		url:    url,
		opts:   opts,
		frames: make(chan proto.Outbound, frameBuffer),
		log:    logger,
	}
}

// Frames delivers relay frames and synthesized disconnects.
func (t *Transport) Frames() <-chan proto.Outbound {
	return t.frames
}

// Connect dials in the background; the hello is the first frame written.
func (t *Transport) Connect(hello proto.HelloData) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{cancel: cancel, ready: make(chan struct{})}
	t.current = c
	go t.run(ctx, c, hello)
	return nil
}

func (t *Transport) run(ctx context.Context, c *conn, hello proto.HelloData) {
	defer c.cancel()

	dialCtx, cancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	wsConn, _, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{HTTPClient: t.opts.HTTPClient})
	cancel()
	if err != nil {
		t.finish(c, proto.CauseTransportError, fmt.Sprintf("dial: %v", err))
		return
	}
	if t.opts.ReadLimit > 0 {
		wsConn.SetReadLimit(t.opts.ReadLimit)
	}
	c.ws = wsConn
	close(c.ready)
	t.log.Debug().Str("url", t.url).Msg("relay dialed")

	in, err := proto.NewInbound(proto.InboundTypeHello, hello)
	if err == nil {
		err = t.write(ctx, c, in)
	}
	if err != nil {
		_ = wsConn.Close(websocket.StatusInternalError, "hello failed")
		t.finish(c, proto.CauseTransportError, fmt.Sprintf("hello: %v", err))
		return
	}

	cause, reason := t.readLoop(ctx, c)
	_ = wsConn.Close(websocket.StatusNormalClosure, "bye")
	t.finish(c, cause, reason)
}

func (t *Transport) readLoop(ctx context.Context, c *conn) (string, string) {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, c.ws, &out); err != nil {
			switch {
			case c.closing.Load():
				return proto.CauseClientDisconnect, ""
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				return proto.CauseServerDisconnect, err.Error()
			default:
				t.log.Warn().Err(err).Msg("read relay frame")
				return proto.CauseTransportError, err.Error()
			}
		}
		t.frames <- out
	}
}

func (t *Transport) write(ctx context.Context, c *conn, in proto.Inbound) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, in)
}

// finish forgets the connection and reports why it ended.
func (t *Transport) finish(c *conn, cause, reason string) {
	t.mu.Lock()
	if t.current == c {
		t.current = nil
	}
	t.mu.Unlock()

	if c.closing.Load() {
		cause, reason = proto.CauseClientDisconnect, ""
	}
	gone, _ := proto.NewEvent(proto.EventDisconnected, proto.DisconnectedData{Cause: cause, Reason: reason})
	t.frames <- gone
}

// Send writes a frame. It fails until the dial has completed.
func (t *Transport) Send(in proto.Inbound) error {
	t.mu.Lock()
	c := t.current
	t.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	select {
	case <-c.ready:
	default:
		return ErrNotConnected
	}
	return t.write(context.Background(), c, in)
}

// Disconnect closes the connection. The disconnected frame follows.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	c := t.current
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	c.closing.Store(true)
	select {
	case <-c.ready:
		err := c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
		c.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			t.log.Debug().Err(err).Msg("close relay connection")
		}
	default:
		c.cancel()
	}
	return nil
}

package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/peerlink/internal/proto"
)

func TestSessionConnectRequiresNickname(t *testing.T) {
	s := NewSession(newFakeTransport(), "1.0", "", nil)

	err := s.Connect("")
	require.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSessionConnectLifecycle(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "1.0", "ticket", nil)

	require.NoError(t, s.Connect("alice"))
	assert.Equal(t, StateConnecting, s.State())
	require.NotNil(t, tr.hello)
	assert.Equal(t, proto.HelloData{User: "alice", Version: "1.0", Token: "ticket", Protocol: proto.ProtocolVersion}, *tr.hello)

	require.ErrorIs(t, s.Connect("alice"), ErrAlreadyConnected)

	assert.True(t, s.HandleWelcome(proto.WelcomeData{ConnectionID: "c1", User: "alice"}))
	assert.True(t, s.Connected())
	assert.False(t, s.HandleWelcome(proto.WelcomeData{}), "second welcome is ignored")

	require.ErrorIs(t, s.SetNickname("bob"), ErrAlreadyConnected)
	assert.Equal(t, "alice", s.Nickname())
}

func TestSessionDisconnectIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "1.0", "", nil)

	require.NoError(t, s.Disconnect())
	assert.Equal(t, 0, tr.disconnects)

	require.NoError(t, s.Connect("alice"))
	s.HandleWelcome(proto.WelcomeData{})

	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	assert.Equal(t, 1, tr.disconnects)
	assert.Equal(t, StateDisconnected, s.State())
	require.NotNil(t, s.LastDisconnect())
	assert.True(t, s.LastDisconnect().UserInitiated())

	// The transport's own report of the closed link changes nothing.
	assert.Nil(t, s.HandleDisconnected(proto.DisconnectedData{Cause: proto.CauseClientDisconnect}))
}

func TestSessionTransportLoss(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "1.0", "", nil)
	require.NoError(t, s.Connect("alice"))
	s.HandleWelcome(proto.WelcomeData{})

	derr := s.HandleDisconnected(proto.DisconnectedData{Cause: proto.CauseTransportError, Reason: "reset by peer"})
	require.NotNil(t, derr)
	assert.False(t, derr.UserInitiated())
	assert.Equal(t, CauseTransportError, derr.Cause)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Contains(t, derr.Error(), "reset by peer")
}

func TestSessionConnectFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = errDial
	s := NewSession(tr, "1.0", "", nil)

	err := s.Connect("alice")
	require.ErrorIs(t, err, errDial)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, CauseTransportError, s.LastDisconnect().Cause)
}

func TestSessionHelloRejected(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "1.0", "", nil)
	require.NoError(t, s.Connect("alice"))

	err := s.HandleHelloRejected(&proto.Error{Code: proto.ErrCodeUnauthorized, Msg: "invalid ticket", Op: proto.InboundTypeHello})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, proto.ErrCodeUnauthorized, perr.Code)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, CauseRejected, s.LastDisconnect().Cause)
	assert.Equal(t, 1, tr.disconnects)
}

func TestSessionSetNickname(t *testing.T) {
	s := NewSession(newFakeTransport(), "1.0", "", nil)

	require.ErrorIs(t, s.SetNickname(""), ErrInvalidIdentity)
	require.NoError(t, s.SetNickname("carol"))
	assert.Equal(t, "carol", s.Nickname())
}

// Package peer holds the client-side session state machines: the connection to
// the relay, the cached room directory and the joined room. None of the types
// are safe for concurrent use; a single owner goroutine drives them.
package peer

import (
	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
)

// State is the connectivity state of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedToMaster
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnectedToMaster:
		return "connected_to_master"
	default:
		return "disconnected"
	}
}

// Session owns the peer identity and its connectivity to the relay.
type Session struct {
	transport Transport
	version   string
	token     string
	nickname  string
	state     State
	lastCause *DisconnectedError
	log       *zerolog.Logger
}

// NewSession creates a disconnected session.
func NewSession(t Transport, version, token string, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{transport: t, version: version, token: token, log: logger}
}

// State returns the connectivity state.
func (s *Session) State() State { return s.state }

// Connected reports whether the relay accepted the hello.
func (s *Session) Connected() bool { return s.state == StateConnectedToMaster }

// Nickname returns the current identity.
func (s *Session) Nickname() string { return s.nickname }

// Version returns the game version used to segregate incompatible peers.
func (s *Session) Version() string { return s.version }

// LastDisconnect returns why the previous connection ended, if it did.
func (s *Session) LastDisconnect() *DisconnectedError { return s.lastCause }

// SetNickname changes the identity. Only allowed while disconnected.
func (s *Session) SetNickname(nickname string) error {
	if s.state != StateDisconnected {
		return opError("set_nickname", ErrAlreadyConnected)
	}
	if nickname == "" {
		return opError("set_nickname", ErrInvalidIdentity)
	}
	s.nickname = nickname
	return nil
}

// Connect starts connecting with the given nickname.
func (s *Session) Connect(nickname string) error {
	if nickname == "" {
		return opError("connect", ErrInvalidIdentity)
	}
	if s.state != StateDisconnected {
		return opError("connect", ErrAlreadyConnected)
	}
	s.nickname = nickname
	s.state = StateConnecting
	s.lastCause = nil

	hello := proto.HelloData{User: nickname, Version: s.version, Token: s.token, Protocol: proto.ProtocolVersion}
	if err := s.transport.Connect(hello); err != nil {
		s.state = StateDisconnected
		s.lastCause = &DisconnectedError{Cause: CauseTransportError, Reason: err.Error()}
		return &Error{Op: "connect", Err: err}
	}
	s.log.Info().Str("nickname", nickname).Str("version", s.version).Msg("connecting")
	return nil
}

// Disconnect drops the connection. It is a no-op when already disconnected.
func (s *Session) Disconnect() error {
	if s.state == StateDisconnected {
		return nil
	}
	s.state = StateDisconnected
	s.lastCause = &DisconnectedError{Cause: CauseClientDisconnect}
	s.log.Info().Str("nickname", s.nickname).Msg("disconnecting")
	return s.transport.Disconnect()
}

// HandleWelcome completes the connection. It reports whether the state changed.
func (s *Session) HandleWelcome(data proto.WelcomeData) bool {
	if s.state != StateConnecting {
		return false
	}
	s.state = StateConnectedToMaster
	s.log.Info().Str("nickname", s.nickname).Str("connection_id", data.ConnectionID).Msg("connected to master")
	return true
}

// HandleDisconnected records the transport-reported loss of the link. It
// returns nil when the session was already disconnected.
func (s *Session) HandleDisconnected(data proto.DisconnectedData) *DisconnectedError {
	if s.state == StateDisconnected {
		return nil
	}
	s.state = StateDisconnected
	s.lastCause = &DisconnectedError{Cause: Cause(data.Cause), Reason: data.Reason}
	s.log.Warn().Str("cause", data.Cause).Str("reason", data.Reason).Msg("disconnected")
	return s.lastCause
}

// HandleHelloRejected fails a pending connect after the relay refused the hello.
func (s *Session) HandleHelloRejected(e *proto.Error) error {
	err := ErrorFromCode(e)
	if s.state != StateConnecting {
		return err
	}
	s.state = StateDisconnected
	s.lastCause = &DisconnectedError{Cause: CauseRejected, Reason: e.Msg}
	s.log.Warn().Str("code", e.Code).Msg("hello rejected")
	if dErr := s.transport.Disconnect(); dErr != nil {
		s.log.Debug().Err(dErr).Msg("close rejected link")
	}
	return err
}

package peer

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/peerlink/internal/proto"
)

var (
	ErrNotConnected        = errors.New("not connected")
	ErrAlreadyConnected    = errors.New("already connected")
	ErrInvalidIdentity     = errors.New("nickname required")
	ErrInvalidRoomName     = errors.New("room name required")
	ErrNotInDirectoryScope = errors.New("not in lobby")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrRoomClosed          = errors.New("room is closed")
	ErrRoomExists          = errors.New("room already exists")
	ErrNoRoomsAvailable    = errors.New("no rooms available")
	ErrNotAuthorized       = errors.New("only the master client may do this")
	ErrNotInRoom           = errors.New("not in room")
	ErrAlreadyInRoom       = errors.New("already in room")
	ErrBusy                = errors.New("room operation in progress")
)

var codeErrors = map[string]error{
	proto.ErrCodeNotConnected:     ErrNotConnected,
	proto.ErrCodeAlreadyConnected: ErrAlreadyConnected,
	proto.ErrCodeInvalidIdentity:  ErrInvalidIdentity,
	proto.ErrCodeInvalidRoomName:  ErrInvalidRoomName,
	proto.ErrCodeNotInLobby:       ErrNotInDirectoryScope,
	proto.ErrCodeRoomNotFound:     ErrRoomNotFound,
	proto.ErrCodeRoomFull:         ErrRoomFull,
	proto.ErrCodeRoomClosed:       ErrRoomClosed,
	proto.ErrCodeRoomExists:       ErrRoomExists,
	proto.ErrCodeNoRoomsAvailable: ErrNoRoomsAvailable,
	proto.ErrCodeNotAuthorized:    ErrNotAuthorized,
	proto.ErrCodeNotInRoom:        ErrNotInRoom,
	proto.ErrCodeAlreadyInRoom:    ErrAlreadyInRoom,
}

// Error is a failed operation. Err is one of the package sentinels when the
// failure is known, so callers can use errors.Is.
type Error struct {
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	code := ""
	for c, sentinel := range codeErrors {
		if sentinel == err {
			code = c
			break
		}
	}
	return &Error{Op: op, Code: code, Err: err}
}

// ErrorFromCode maps a relay error back to a sentinel.
func ErrorFromCode(e *proto.Error) error {
	err, ok := codeErrors[e.Code]
	if !ok {
		err = errors.New(e.Msg)
	}
	return &Error{Op: e.Op, Code: e.Code, Err: err}
}

// Cause tells why the link to the relay dropped.
type Cause string

const (
	CauseClientDisconnect Cause = proto.CauseClientDisconnect
	CauseServerDisconnect Cause = proto.CauseServerDisconnect
	CauseTransportError   Cause = proto.CauseTransportError
	CauseRejected         Cause = proto.CauseRejected
)

// DisconnectedError reports the loss of the relay connection.
type DisconnectedError struct {
	Cause  Cause
	Reason string
}

func (e *DisconnectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("disconnected (%s): %s", e.Cause, e.Reason)
	}
	return fmt.Sprintf("disconnected (%s)", e.Cause)
}

// UserInitiated reports whether the local peer asked for the disconnect.
func (e *DisconnectedError) UserInitiated() bool {
	return e.Cause == CauseClientDisconnect
}

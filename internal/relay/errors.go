package relay

import (
	"errors"

	"github.com/vovakirdan/peerlink/internal/proto"
)

var (
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Op      string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// Proto converts the error to its wire form.
func (e *CoreError) Proto() *proto.Error {
	return &proto.Error{Code: e.Code, Msg: e.Message, Op: e.Op}
}

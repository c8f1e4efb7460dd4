package proto

// Error codes shared by the relay and peers.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeNotConnected       = "not_connected"
	ErrCodeAlreadyConnected   = "already_connected"
	ErrCodeInvalidIdentity    = "invalid_identity"
	ErrCodeInvalidRoomName    = "invalid_room_name"
	ErrCodeNotInLobby         = "not_in_lobby"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeRoomFull           = "room_full"
	ErrCodeRoomClosed         = "room_closed"
	ErrCodeRoomExists         = "room_exists"
	ErrCodeNoRoomsAvailable   = "no_rooms_available"
	ErrCodeNotAuthorized      = "not_authorized"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeAlreadyInRoom      = "already_in_room"
)

package peer

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
)

// RoomState is the lifecycle state of the local room membership.
type RoomState int

const (
	RoomNone RoomState = iota
	RoomCreating
	RoomJoining
	RoomJoined
	RoomLeaving
)

func (s RoomState) String() string {
	switch s {
	case RoomCreating:
		return "creating"
	case RoomJoining:
		return "joining"
	case RoomJoined:
		return "joined"
	case RoomLeaving:
		return "leaving"
	default:
		return "no_room"
	}
}

// PaletteSize is the number of distinct member colours.
const PaletteSize = 8

// Member is one actor in the joined room.
type Member struct {
	ActorID  int
	Nickname string
	Master   bool
	Color    int
}

// RoomInfo is recomputed after every membership change.
type RoomInfo struct {
	Name        string
	PlayerCount int
	MaxPlayers  int
	ActorID     int
	MasterID    int
	Open        bool
	Visible     bool
	Started     bool
}

type lobby interface {
	InScope() bool
}

// Room tracks the single room the peer is in.
type Room struct {
	sender     Sender
	conn       connectivity
	lobby      lobby
	maxPlayers int
	log        *zerolog.Logger

	state    RoomState
	name     string
	summary  proto.RoomSummary
	actorID  int
	masterID int
	started  bool
	members  map[int]string
}

// NewRoom creates a room tracker. defaultMaxPlayers applies when Create gets 0.
func NewRoom(sender Sender, conn connectivity, lobby lobby, defaultMaxPlayers int, logger *zerolog.Logger) *Room {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Room{
		sender:     sender,
		conn:       conn,
		lobby:      lobby,
		maxPlayers: defaultMaxPlayers,
		log:        logger,
		members:    make(map[int]string),
	}
}

func (r *Room) State() RoomState { return r.state }

func (r *Room) InRoom() bool { return r.state == RoomJoined }

func (r *Room) ActorID() int { return r.actorID }

func (r *Room) MasterID() int { return r.masterID }

// IsMaster reports whether the local actor holds room authority.
func (r *Room) IsMaster() bool {
	return r.state == RoomJoined && r.actorID != 0 && r.actorID == r.masterID
}

// Info returns the current room info.
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		Name:        r.name,
		PlayerCount: len(r.members),
		MaxPlayers:  r.summary.MaxPlayers,
		ActorID:     r.actorID,
		MasterID:    r.masterID,
		Open:        r.summary.Open,
		Visible:     r.summary.Visible,
		Started:     r.started,
	}
}

// Members lists the actors ordered by actor id.
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for id, nick := range r.members {
		out = append(out, Member{ActorID: id, Nickname: nick, Master: id == r.masterID, Color: id % PaletteSize})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

func (r *Room) ready(op string) error {
	if !r.conn.Connected() {
		return opError(op, ErrNotConnected)
	}
	switch r.state {
	case RoomNone:
		return nil
	case RoomJoined:
		return opError(op, ErrAlreadyInRoom)
	default:
		return opError(op, ErrBusy)
	}
}

// Create asks the relay for a new room. The caller must be in the lobby scope.
func (r *Room) Create(name string, maxPlayers int) error {
	const op = proto.InboundTypeCreateRoom
	if name == "" {
		return opError(op, ErrInvalidRoomName)
	}
	if err := r.ready(op); err != nil {
		return err
	}
	if !r.lobby.InScope() {
		return opError(op, ErrNotInDirectoryScope)
	}
	if maxPlayers <= 0 {
		maxPlayers = r.maxPlayers
	}
	if err := send(r.sender, op, proto.CreateRoomData{Room: name, MaxPlayers: maxPlayers, Visible: true, Open: true}); err != nil {
		return err
	}
	r.state = RoomCreating
	r.name = name
	r.log.Info().Str("room", name).Int("max_players", maxPlayers).Msg("creating room")
	return nil
}

// Join asks to join a named room.
func (r *Room) Join(name string) error {
	const op = proto.InboundTypeJoinRoom
	if name == "" {
		return opError(op, ErrInvalidRoomName)
	}
	if err := r.ready(op); err != nil {
		return err
	}
	if err := send(r.sender, op, proto.JoinData{Room: name}); err != nil {
		return err
	}
	r.state = RoomJoining
	r.name = name
	r.log.Info().Str("room", name).Msg("joining room")
	return nil
}

// JoinRandom asks to join any open room with a free slot.
func (r *Room) JoinRandom() error {
	const op = proto.InboundTypeJoinRandom
	if err := r.ready(op); err != nil {
		return err
	}
	if err := send(r.sender, op, nil); err != nil {
		return err
	}
	r.state = RoomJoining
	r.name = ""
	r.log.Info().Msg("joining random room")
	return nil
}

// Leave asks to leave the current room.
func (r *Room) Leave() error {
	const op = proto.InboundTypeLeaveRoom
	if r.state != RoomJoined {
		return opError(op, ErrNotInRoom)
	}
	if err := send(r.sender, op, nil); err != nil {
		return err
	}
	r.state = RoomLeaving
	r.log.Info().Str("room", r.name).Msg("leaving room")
	return nil
}

func (r *Room) requireMaster(op string) error {
	if !r.conn.Connected() {
		return opError(op, ErrNotConnected)
	}
	if r.state != RoomJoined {
		return opError(op, ErrNotInRoom)
	}
	if !r.IsMaster() {
		return opError(op, ErrNotAuthorized)
	}
	return nil
}

// StartSession starts the game for every member. Master only.
func (r *Room) StartSession() error {
	const op = proto.InboundTypeStartSession
	if err := r.requireMaster(op); err != nil {
		return err
	}
	return send(r.sender, op, nil)
}

// SetOpen toggles whether new actors may join. Master only.
func (r *Room) SetOpen(open bool) error {
	const op = proto.InboundTypeSetRoomProps
	if err := r.requireMaster(op); err != nil {
		return err
	}
	return send(r.sender, op, proto.RoomPropsData{Open: &open})
}

// SetVisible toggles whether the room is listed in the lobby. Master only.
func (r *Room) SetVisible(visible bool) error {
	const op = proto.InboundTypeSetRoomProps
	if err := r.requireMaster(op); err != nil {
		return err
	}
	return send(r.sender, op, proto.RoomPropsData{Visible: &visible})
}

// HandleSnapshot installs the atomic membership snapshot delivered on join.
func (r *Room) HandleSnapshot(snap proto.RoomSnapshot) {
	r.state = RoomJoined
	r.name = snap.Room.Name
	r.summary = snap.Room
	r.actorID = snap.ActorID
	r.masterID = snap.MasterID
	r.started = snap.Started
	clear(r.members)
	for _, m := range snap.Members {
		r.members[m.ActorID] = m.Nickname
	}
	if _, ok := r.members[r.masterID]; !ok {
		r.masterID = r.lowestActor()
	}
	r.log.Info().Str("room", r.name).Int("actor", r.actorID).Int("master", r.masterID).Int("players", len(r.members)).Msg("joined room")
}

// HandleMemberJoined adds an actor.
func (r *Room) HandleMemberJoined(m proto.MemberData) {
	if r.state != RoomJoined {
		return
	}
	r.members[m.ActorID] = m.Nickname
	r.log.Debug().Str("room", r.name).Int("actor", m.ActorID).Str("nickname", m.Nickname).Msg("member joined")
}

// HandleMemberLeft removes an actor. When the master leaves, the lowest
// remaining actor id takes over; the relay applies the same rule so every
// peer converges without a vote. It reports whether the master changed.
func (r *Room) HandleMemberLeft(m proto.MemberData) bool {
	if r.state != RoomJoined {
		return false
	}
	if _, ok := r.members[m.ActorID]; !ok {
		return false
	}
	delete(r.members, m.ActorID)
	r.log.Debug().Str("room", r.name).Int("actor", m.ActorID).Str("nickname", m.Nickname).Msg("member left")
	if m.ActorID != r.masterID {
		return false
	}
	r.masterID = r.lowestActor()
	r.log.Info().Str("room", r.name).Int("master", r.masterID).Msg("master migrated")
	return true
}

// HandleMasterChanged applies the relay's designation. It reports whether the
// local view changed.
func (r *Room) HandleMasterChanged(m proto.MemberData) bool {
	if r.state != RoomJoined || m.ActorID == r.masterID {
		return false
	}
	if _, ok := r.members[m.ActorID]; !ok {
		r.log.Warn().Str("room", r.name).Int("actor", m.ActorID).Msg("master is not a known member")
		return false
	}
	r.log.Warn().Str("room", r.name).Int("local", r.masterID).Int("relay", m.ActorID).Msg("master designation differs, following relay")
	r.masterID = m.ActorID
	return true
}

// HandleRoomUpdated applies changed room flags.
func (r *Room) HandleRoomUpdated(summary proto.RoomSummary) {
	if r.state != RoomJoined {
		return
	}
	r.summary = summary
}

// HandleSessionStarted marks the room as started.
func (r *Room) HandleSessionStarted() {
	if r.state == RoomJoined {
		r.started = true
	}
}

// HandleError resolves a pending create, join or leave rejected by the relay.
// A leave rejected with not_in_room means the relay already dropped us and the
// room is forgotten; any other leave failure keeps the membership so the
// caller can retry.
func (r *Room) HandleError(e *proto.Error) error {
	err := ErrorFromCode(e)
	switch e.Op {
	case proto.InboundTypeCreateRoom, proto.InboundTypeJoinRoom, proto.InboundTypeJoinRandom:
		if r.state == RoomCreating || r.state == RoomJoining {
			r.log.Warn().Str("room", r.name).Str("code", e.Code).Msg("room request failed")
			r.state = RoomNone
			r.name = ""
		}
	case proto.InboundTypeLeaveRoom:
		if r.state != RoomLeaving {
			break
		}
		if e.Code == proto.ErrCodeNotInRoom {
			r.Reset()
			break
		}
		r.log.Warn().Str("room", r.name).Str("code", e.Code).Msg("leave failed, still in room")
		r.state = RoomJoined
	}
	return err
}

// Reset forgets the room. Used on room_left and on loss of the connection.
func (r *Room) Reset() {
	r.state = RoomNone
	r.name = ""
	r.summary = proto.RoomSummary{}
	r.actorID = 0
	r.masterID = 0
	r.started = false
	clear(r.members)
}

func (r *Room) lowestActor() int {
	lowest := 0
	for id := range r.members {
		if lowest == 0 || id < lowest {
			lowest = id
		}
	}
	return lowest
}

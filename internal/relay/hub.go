package relay

import (
	"context"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/auth"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
	"github.com/vovakirdan/peerlink/internal/store"
	"github.com/vovakirdan/peerlink/internal/store/memory"
)

type roomKey struct {
	version string
	name    string
}

// Hub owns every room and client. All state is mutated on the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan *Command
	queries    chan func()
	stopped    chan struct{}

	clients map[*Client]struct{}
	rooms   map[roomKey]*Room
	slow    []*Client

	events   store.EventLog
	verifier *auth.Verifier
	log      *zerolog.Logger
}

// NewHub creates a relay hub. A nil event log falls back to an in-memory one,
// a nil verifier accepts every hello.
func NewHub(events store.EventLog, verifier *auth.Verifier, logger *zerolog.Logger) *Hub {
	if events == nil {
		events = memory.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan *Command, commandBuffer),
		queries:    make(chan func()),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[roomKey]*Room),
		events:     events,
		verifier:   verifier,
		log:        logger,
	}
}

// Run processes registrations and commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.forget(ctx, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.forward(c)
		case c := <-h.unregister:
			h.forget(ctx, c)
		case cmd := <-h.commands:
			if _, ok := h.clients[cmd.client]; !ok {
				continue
			}
			h.handle(ctx, cmd)
		case q := <-h.queries:
			q()
		}
		h.dropSlow(ctx)
	}
}

// RegisterClient attaches the client to the hub and starts consuming its commands.
func (h *Hub) RegisterClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// UnregisterClient detaches the client. Leaving counts as a room leave.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Rooms returns the directory for a game version.
func (h *Hub) Rooms(ctx context.Context, version string) ([]proto.RoomSummary, error) {
	result := make(chan []proto.RoomSummary, 1)
	q := func() { result <- h.directory(version) }
	select {
	case h.queries <- q:
	case <-h.stopped:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-result, nil
}

func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			cmd.client = c
			select {
			case h.commands <- cmd:
			case <-c.done:
				return
			case <-h.stopped:
				return
			}
		case <-c.done:
			return
		case <-h.stopped:
			return
		}
	}
}

func (h *Hub) forget(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	if c.room != nil {
		h.leaveRoom(ctx, c)
	}
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Str("user", c.name).Msg("client unregistered")
}

func (h *Hub) dropSlow(ctx context.Context) {
	for len(h.slow) > 0 {
		c := h.slow[0]
		h.slow = h.slow[1:]
		if _, ok := h.clients[c]; ok {
			h.log.Warn().Str("client_id", c.ID).Msg("dropping slow client")
			h.forget(ctx, c)
		}
	}
}

// deliver never blocks the hub. State samples are dropped under pressure,
// losing anything else marks the client for removal.
func (h *Hub) deliver(c *Client, ev *Event) {
	if !ev.control() && len(c.Events) > cap(c.Events)/2 {
		return
	}
	select {
	case c.Events <- ev:
	default:
		if ev.control() {
			h.slow = append(h.slow, c)
		}
	}
}

func (h *Hub) fail(c *Client, kind CommandKind, err *CoreError) {
	err.Op = kind.Op()
	h.deliver(c, &Event{Kind: EventError, Error: err})
}

func (h *Hub) broadcast(r *Room, ev *Event, except *Client) {
	for _, c := range r.Clients(except) {
		h.deliver(c, ev)
	}
}

func (h *Hub) handle(ctx context.Context, cmd *Command) {
	c := cmd.client
	if cmd.Kind != CommandHello && !c.welcomed {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeNotConnected, "hello required"))
		return
	}

	switch cmd.Kind {
	case CommandHello:
		h.hello(c, cmd)
	case CommandJoinLobby:
		h.joinLobby(c, cmd)
	case CommandLeaveLobby:
		c.inLobby = false
		h.deliver(c, &Event{Kind: EventLobbyLeft})
	case CommandCreateRoom:
		h.createRoom(ctx, c, cmd)
	case CommandJoinRoom:
		h.joinRoom(ctx, c, cmd)
	case CommandJoinRandom:
		h.joinRandom(ctx, c, cmd)
	case CommandLeaveRoom:
		if c.room == nil {
			h.fail(c, cmd.Kind, coreError(proto.ErrCodeNotInRoom, "not in room"))
			return
		}
		name := c.room.Name
		h.leaveRoom(ctx, c)
		h.deliver(c, &Event{Kind: EventRoomLeft, Room: name, Data: proto.JoinData{Room: name}})
	case CommandStartSession:
		h.startSession(c, cmd)
	case CommandSetRoomProps:
		h.setRoomProps(c, cmd)
	case CommandState:
		h.relayState(c, cmd)
	case CommandRaise:
		h.raise(ctx, c, cmd)
	default:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) hello(c *Client, cmd *Command) {
	hello := cmd.Hello
	switch {
	case c.welcomed:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeAlreadyConnected, "already connected"))
		return
	case hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeUnsupportedVersion, "unsupported protocol version"))
		return
	case hello.User == "":
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeInvalidIdentity, "nickname required"))
		return
	case hello.Version == "":
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeBadRequest, "game version required"))
		return
	}
	if err := h.verifier.Verify(hello.User, hello.Token); err != nil {
		h.log.Warn().Err(err).Str("client_id", c.ID).Str("user", hello.User).Msg("ticket rejected")
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeUnauthorized, "invalid ticket"))
		return
	}

	c.name = hello.User
	c.version = hello.Version
	c.welcomed = true
	h.log.Info().Str("client_id", c.ID).Str("user", c.name).Str("version", c.version).Msg("client connected")
	h.deliver(c, &Event{Kind: EventWelcome, Data: proto.WelcomeData{ConnectionID: c.ID, User: c.name}})
}

func (h *Hub) joinLobby(c *Client, cmd *Command) {
	if c.room != nil {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeAlreadyInRoom, "leave the room before joining the lobby"))
		return
	}
	c.inLobby = true
	h.deliver(c, &Event{Kind: EventLobbyJoined})
	if rooms := h.directory(c.version); len(rooms) > 0 {
		h.deliver(c, &Event{Kind: EventRoomList, Data: proto.RoomListData{Rooms: rooms}})
	}
}

func (h *Hub) directory(version string) []proto.RoomSummary {
	out := make([]proto.RoomSummary, 0)
	for key, r := range h.rooms {
		if key.version == version {
			out = append(out, r.Summary())
		}
	}
	return out
}

// announce pushes a single-room delta to every lobby subscriber of the version.
func (h *Hub) announce(summary proto.RoomSummary, version string) {
	ev := &Event{Kind: EventRoomList, Data: proto.RoomListData{Rooms: []proto.RoomSummary{summary}}}
	for c := range h.clients {
		if c.inLobby && c.version == version {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) createRoom(ctx context.Context, c *Client, cmd *Command) {
	opts := cmd.Room
	switch {
	case opts.Room == "":
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeInvalidRoomName, "room name required"))
		return
	case opts.MaxPlayers < 0:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeBadRequest, "max players must not be negative"))
		return
	case c.room != nil:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeAlreadyInRoom, "already in room"))
		return
	}
	key := roomKey{version: c.version, name: opts.Room}
	if _, exists := h.rooms[key]; exists {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeRoomExists, "room already exists"))
		return
	}

	r := NewRoom(c.version, opts)
	h.rooms[key] = r
	h.log.Info().Str("room", r.Name).Str("version", r.Version).Str("user", c.name).Msg("room created")
	h.enter(ctx, c, r, true)
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, cmd *Command) {
	if c.room != nil {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeAlreadyInRoom, "already in room"))
		return
	}
	if cmd.Room.Room == "" {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeInvalidRoomName, "room name required"))
		return
	}
	r, ok := h.rooms[roomKey{version: c.version, name: cmd.Room.Room}]
	switch {
	case !ok:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeRoomNotFound, "room not found"))
		return
	case !r.Open:
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeRoomClosed, "room is closed"))
		return
	case r.Full():
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeRoomFull, "room is full"))
		return
	}
	h.enter(ctx, c, r, false)
}

func (h *Hub) joinRandom(ctx context.Context, c *Client, cmd *Command) {
	if c.room != nil {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeAlreadyInRoom, "already in room"))
		return
	}
	candidates := make([]*Room, 0)
	for key, r := range h.rooms {
		if key.version == c.version && r.Joinable() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeNoRoomsAvailable, "no rooms available"))
		return
	}
	h.enter(ctx, c, candidates[rand.IntN(len(candidates))], false)
}

// enter adds the client to the room and sends the joining snapshot.
func (h *Hub) enter(ctx context.Context, c *Client, r *Room, created bool) {
	c.inLobby = false
	actor := r.AddClient(c)

	snapshot := proto.RoomSnapshot{
		Room:     r.Summary(),
		ActorID:  actor,
		MasterID: r.MasterID(),
		Members:  r.Members(),
		Created:  created,
		Started:  r.Started,
	}
	buffered, err := h.events.List(ctx, r.Key())
	if err != nil {
		h.log.Error().Err(err).Str("room", r.Name).Msg("list buffered events")
	}
	for _, ev := range buffered {
		snapshot.Buffered = append(snapshot.Buffered, proto.RaiseData{
			Kind:     ev.Kind,
			Object:   ev.Object,
			Actor:    ev.Actor,
			Buffered: true,
			Payload:  ev.Payload,
		})
	}

	h.deliver(c, &Event{Kind: EventRoomJoined, Room: r.Name, Data: snapshot})
	h.broadcast(r, &Event{
		Kind: EventMemberJoined,
		Room: r.Name,
		Data: proto.MemberData{Room: r.Name, ActorID: actor, Nickname: c.name},
	}, c)
	h.announce(r.Summary(), r.Version)
	h.log.Debug().Str("room", r.Name).Int("actor", actor).Str("user", c.name).Msg("actor joined")
}

func (h *Hub) leaveRoom(ctx context.Context, c *Client) {
	r := c.room
	actor := c.actorID
	nickname := c.name
	migrated := r.RemoveActor(actor)

	h.broadcast(r, &Event{
		Kind: EventMemberLeft,
		Room: r.Name,
		Data: proto.MemberData{Room: r.Name, ActorID: actor, Nickname: nickname},
	}, nil)

	if r.Empty() {
		delete(h.rooms, roomKey{version: r.Version, name: r.Name})
		if err := h.events.DropRoom(ctx, r.Key()); err != nil {
			h.log.Error().Err(err).Str("room", r.Name).Msg("drop buffered events")
		}
		removed := r.Summary()
		removed.Removed = true
		h.announce(removed, r.Version)
		h.log.Info().Str("room", r.Name).Str("version", r.Version).Msg("room closed")
		return
	}

	if migrated {
		master, _ := r.Member(r.MasterID())
		h.broadcast(r, &Event{
			Kind: EventMasterChanged,
			Room: r.Name,
			Data: proto.MemberData{Room: r.Name, ActorID: r.MasterID(), Nickname: master.name},
		}, nil)
		h.log.Info().Str("room", r.Name).Int("master", r.MasterID()).Msg("master migrated")
	}
	h.announce(r.Summary(), r.Version)
}

func (h *Hub) requireMaster(c *Client, kind CommandKind) bool {
	if c.room == nil {
		h.fail(c, kind, coreError(proto.ErrCodeNotInRoom, "not in room"))
		return false
	}
	if c.room.MasterID() != c.actorID {
		h.fail(c, kind, coreError(proto.ErrCodeNotAuthorized, "only the master client may do this"))
		return false
	}
	return true
}

func (h *Hub) startSession(c *Client, cmd *Command) {
	if !h.requireMaster(c, cmd.Kind) {
		return
	}
	r := c.room
	r.Started = true
	h.broadcast(r, &Event{Kind: EventSessionStarted, Room: r.Name, Data: proto.SessionStartedData{Room: r.Name}}, nil)
}

func (h *Hub) setRoomProps(c *Client, cmd *Command) {
	if !h.requireMaster(c, cmd.Kind) {
		return
	}
	r := c.room
	if cmd.Props.Open != nil {
		r.Open = *cmd.Props.Open
	}
	if cmd.Props.Visible != nil {
		r.Visible = *cmd.Props.Visible
	}
	h.broadcast(r, &Event{Kind: EventRoomUpdated, Room: r.Name, Data: r.Summary()}, nil)
	h.announce(r.Summary(), r.Version)
}

// relayState forwards a sample to the other members. Samples outside a room,
// or for an entity outside the sender's id range, are dropped.
func (h *Hub) relayState(c *Client, cmd *Command) {
	if c.room == nil {
		return
	}
	sample := cmd.State
	if replication.EntityID(sample.Entity).Actor() != c.actorID {
		h.log.Warn().Str("client_id", c.ID).Int("actor", c.actorID).Uint32("entity", sample.Entity).Msg("dropping sample for foreign entity")
		return
	}
	sample.Owner = c.actorID
	h.broadcast(c.room, &Event{Kind: EventState, Room: c.room.Name, Data: sample}, c)
}

func (h *Hub) raise(ctx context.Context, c *Client, cmd *Command) {
	raise := cmd.Raise
	if raise.Object == "" || raise.Kind == "" {
		h.fail(c, cmd.Kind, coreError(proto.ErrCodeBadRequest, "kind and object required"))
		return
	}
	switch raise.Kind {
	case proto.RaiseSpawn, proto.RaiseDestroy:
		if !h.requireMaster(c, cmd.Kind) {
			return
		}
	default:
		if c.room == nil {
			h.fail(c, cmd.Kind, coreError(proto.ErrCodeNotInRoom, "not in room"))
			return
		}
	}

	r := c.room
	raise.Actor = c.actorID
	switch {
	case raise.Kind == proto.RaiseDestroy:
		r.MarkDestroyed(raise.Object)
		if err := h.events.RemoveObject(ctx, r.Key(), raise.Object); err != nil {
			h.log.Error().Err(err).Str("room", r.Name).Str("object", raise.Object).Msg("remove buffered events")
		}
	case raise.Buffered && r.Destroyed(raise.Object):
		// A late collect for a destroyed object is still relayed but never buffered.
		h.log.Debug().Str("room", r.Name).Str("object", raise.Object).Str("kind", raise.Kind).Msg("not buffering event for destroyed object")
	case raise.Buffered:
		if err := h.events.Append(ctx, &store.BufferedEvent{
			Room:    r.Key(),
			Kind:    raise.Kind,
			Object:  raise.Object,
			Actor:   raise.Actor,
			Payload: raise.Payload,
		}); err != nil {
			h.log.Error().Err(err).Str("room", r.Name).Str("object", raise.Object).Msg("buffer event")
		}
	}
	h.broadcast(r, &Event{Kind: EventRaised, Room: r.Name, Data: raise}, c)
}

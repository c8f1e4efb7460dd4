// Package game wires the peer state machines into one orchestrator. It gates
// gameplay on connection and room readiness, spawns the local player entity,
// drives replication every frame and tears everything down when the room or
// the connection goes away.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/log"
	"github.com/vovakirdan/peerlink/internal/peer"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
	"github.com/vovakirdan/peerlink/internal/sched"
	"github.com/vovakirdan/peerlink/internal/shared"
)

// ErrNoPlayer is returned by Move before the local player has spawned.
var ErrNoPlayer = errors.New("local player not spawned")

const eventBuffer = 256

// playerSlot is the per-actor entity number of the player avatar.
const playerSlot = 1

// Status is a point-in-time view for UIs and tests.
type Status struct {
	State     peer.State
	Nickname  string
	Scope     peer.Scope
	RoomState peer.RoomState
	Room      peer.RoomInfo
	Members   []peer.Member
	Master    bool
	Score     int
	Objects   int
	Player    replication.EntityID
	Entities  int
}

// Game is the orchestrator of a single peer. It is not safe for concurrent
// use; Runner serializes every call onto one goroutine.
type Game struct {
	cfg       config.PeerConfig
	transport peer.Transport
	sched     sched.Scheduler
	rng       *rand.Rand
	log       *zerolog.Logger

	session   *peer.Session
	directory *peer.Directory
	room      *peer.Room
	channel   *replication.Channel
	objects   *shared.Coordinator

	events chan Event
	settle sched.Task
	player replication.EntityID
}

// New builds the peer components around the transport.
func New(cfg config.PeerConfig, t peer.Transport, s sched.Scheduler, rng *rand.Rand, logger *zerolog.Logger) *Game {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g := &Game{
		cfg:       cfg,
		transport: t,
		sched:     s,
		rng:       rng,
		log:       logger,
		events:    make(chan Event, eventBuffer),
	}
	g.session = peer.NewSession(t, cfg.GameVersion, cfg.Token, log.Component(logger, "session"))
	g.directory = peer.NewDirectory(t, g.session, s, cfg.RefreshDelay, log.Component(logger, "directory"))
	g.room = peer.NewRoom(t, g.session, g.directory, cfg.MaxPlayers, log.Component(logger, "room"))
	g.channel = replication.NewChannel(0, replication.Config{
		SmoothingRate:      cfg.Replication.SmoothingRate,
		MaxFrameDelta:      cfg.Replication.MaxFrameDelta,
		RejectStaleSamples: cfg.Replication.RejectStaleSamples,
	}, log.Component(logger, "replication"))
	g.objects = shared.NewCoordinator(objectsConfig(cfg.Objects), g, s, rng, log.Component(logger, "objects"))
	return g
}

func vec(p config.Point) replication.Vec3 {
	return replication.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

func objectsConfig(o config.ObjectsConfig) shared.Config {
	points := make([]replication.Vec3, 0, len(o.Points))
	for _, p := range o.Points {
		points = append(points, vec(p))
	}
	return shared.Config{
		Target:        o.Target,
		Interval:      o.Interval,
		PointsValue:   o.PointsValue,
		CollectRadius: o.CollectRadius,
		Points:        points,
		UseArea:       o.UseArea,
		AreaCenter:    vec(o.AreaCenter),
		AreaSize:      vec(o.AreaSize),
	}
}

// Events is the typed stream consumed by the UI. Events are dropped when the
// consumer falls behind.
func (g *Game) Events() <-chan Event {
	return g.events
}

func (g *Game) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		g.log.Warn().Str("event", ev.Kind.String()).Msg("event stream full, dropping")
	}
}

// Status returns a snapshot of every component.
func (g *Game) Status() Status {
	return Status{
		State:     g.session.State(),
		Nickname:  g.session.Nickname(),
		Scope:     g.directory.Scope(),
		RoomState: g.room.State(),
		Room:      g.room.Info(),
		Members:   g.room.Members(),
		Master:    g.room.IsMaster(),
		Score:     g.objects.Score(),
		Objects:   g.objects.Live(),
		Player:    g.player,
		Entities:  len(g.channel.Entities()),
	}
}

// Connect starts connecting to the relay.
func (g *Game) Connect(nickname string) error {
	return g.session.Connect(nickname)
}

// Disconnect drops the link and tears down the room.
func (g *Game) Disconnect() error {
	if g.session.State() == peer.StateDisconnected {
		return nil
	}
	err := g.session.Disconnect()
	g.teardown()
	g.emit(Event{Kind: EventDisconnected, Err: g.session.LastDisconnect()})
	return err
}

// CreateRoom creates and joins a room. Outside the lobby it requests the
// lobby and still fails, so the caller retries once it is in.
func (g *Game) CreateRoom(name string, maxPlayers int) error {
	err := g.room.Create(name, maxPlayers)
	if errors.Is(err, peer.ErrNotInDirectoryScope) {
		if scopeErr := g.directory.EnterScope(); scopeErr != nil {
			g.log.Warn().Err(scopeErr).Msg("enter lobby for create")
		}
	}
	return err
}

func (g *Game) JoinRoom(name string) error { return g.room.Join(name) }

func (g *Game) JoinRandom() error { return g.room.JoinRandom() }

func (g *Game) LeaveRoom() error { return g.room.Leave() }

func (g *Game) StartSession() error { return g.room.StartSession() }

func (g *Game) SetRoomOpen(open bool) error { return g.room.SetOpen(open) }

func (g *Game) SetRoomVisible(visible bool) error { return g.room.SetVisible(visible) }

// RefreshRooms returns the cached listing or schedules a refresh.
func (g *Game) RefreshRooms() ([]proto.RoomSummary, error) {
	return g.directory.Refresh()
}

// Move writes the local player's authoritative transform.
func (g *Game) Move(pos replication.Vec3, rot replication.Quat, vel replication.Vec3) error {
	if g.player == 0 {
		return ErrNoPlayer
	}
	return g.channel.SetLocalState(g.player, pos, rot, vel)
}

// Player returns the local player entity.
func (g *Game) Player() (replication.Entity, bool) {
	if g.player == 0 {
		return replication.Entity{}, false
	}
	return g.channel.Entity(g.player)
}

// Entities lists every replicated entity, owned or shadowed.
func (g *Game) Entities() []replication.Entity {
	return g.channel.Entities()
}

// Objects lists the live shared objects.
func (g *Game) Objects() []shared.Object {
	return g.objects.Objects()
}

// Collect collects an object on contact.
func (g *Game) Collect(id string) bool {
	score, live := g.objects.Score(), g.objects.Live()
	ok := g.objects.TryCollect(id)
	g.objectsChanged(score, live)
	return ok
}

// Raise publishes a room event for the coordinator.
func (g *Game) Raise(ev proto.RaiseData) error {
	if !g.session.Connected() {
		return fmt.Errorf("raise %s: %w", ev.Kind, peer.ErrNotConnected)
	}
	in, err := proto.NewInbound(proto.InboundTypeRaise, ev)
	if err != nil {
		return err
	}
	return g.transport.Send(in)
}

// Frame advances one simulation frame of length dt.
func (g *Game) Frame(dt time.Duration) {
	if !g.room.InRoom() {
		return
	}
	for _, sample := range g.channel.Tick(dt) {
		in, err := proto.NewInbound(proto.InboundTypeState, sample)
		if err == nil {
			err = g.transport.Send(in)
		}
		if err != nil {
			g.log.Debug().Err(err).Uint32("entity", sample.Entity).Msg("send state")
			break
		}
	}
	if me, ok := g.Player(); ok {
		score, live := g.objects.Score(), g.objects.Live()
		if got := g.objects.CollectNear(me.Position); len(got) > 0 {
			g.objectsChanged(score, live)
		}
	}
}

func (g *Game) objectsChanged(score, live int) {
	if g.objects.Live() != live {
		g.emit(Event{Kind: EventObjectsChanged, Objects: g.objects.Live()})
	}
	if g.objects.Score() != score {
		g.emit(Event{Kind: EventScoreChanged, Score: g.objects.Score()})
	}
}

// Handle applies a frame from the transport.
func (g *Game) Handle(out proto.Outbound) {
	if out.Type == proto.OutboundTypeError {
		g.handleError(out.Error)
		return
	}

	switch out.Event {
	case proto.EventWelcome:
		var data proto.WelcomeData
		if !g.decode(out, &data) || !g.session.HandleWelcome(data) {
			return
		}
		g.emit(Event{Kind: EventConnected})
		if err := g.directory.EnterScope(); err != nil {
			g.log.Warn().Err(err).Msg("enter lobby")
		}
	case proto.EventDisconnected:
		var data proto.DisconnectedData
		g.decode(out, &data)
		if cause := g.session.HandleDisconnected(data); cause != nil {
			g.teardown()
			g.emit(Event{Kind: EventDisconnected, Err: cause})
		}
	case proto.EventLobbyJoined:
		g.directory.HandleScopeJoined()
	case proto.EventLobbyLeft:
		g.directory.HandleScopeLeft()
	case proto.EventRoomList:
		var data proto.RoomListData
		if g.decode(out, &data) {
			g.directory.ApplyUpdate(data.Rooms)
			g.emit(Event{Kind: EventRoomList, Rooms: g.directory.ListVisible()})
		}
	case proto.EventRoomJoined:
		var snap proto.RoomSnapshot
		if g.decode(out, &snap) {
			g.enterRoom(snap)
		}
	case proto.EventRoomLeft:
		if g.room.State() == peer.RoomNone {
			return
		}
		g.leftRoom(g.room.Info())
	case proto.EventRoomUpdated:
		var summary proto.RoomSummary
		if g.decode(out, &summary) {
			g.room.HandleRoomUpdated(summary)
		}
	case proto.EventMemberJoined:
		var m proto.MemberData
		if g.decode(out, &m) {
			g.room.HandleMemberJoined(m)
			g.emit(Event{Kind: EventMembersChanged, Room: g.room.Info(), Members: g.room.Members()})
		}
	case proto.EventMemberLeft:
		var m proto.MemberData
		if g.decode(out, &m) {
			g.memberLeft(m)
		}
	case proto.EventMasterChanged:
		var m proto.MemberData
		if g.decode(out, &m) && g.room.HandleMasterChanged(m) {
			g.objects.SetAuthority(g.room.IsMaster())
			g.emit(Event{Kind: EventMasterChanged, Master: g.room.MasterID(), Members: g.room.Members()})
		}
	case proto.EventSessionStarted:
		if !g.room.InRoom() {
			return
		}
		g.room.HandleSessionStarted()
		g.emit(Event{Kind: EventSessionStarted, Room: g.room.Info()})
		g.beginSession()
	case proto.EventState:
		var sample proto.StateData
		if g.decode(out, &sample) && g.room.InRoom() {
			g.channel.Apply(sample)
		}
	case proto.EventRaised:
		var ev proto.RaiseData
		if g.decode(out, &ev) && g.room.InRoom() {
			score, live := g.objects.Score(), g.objects.Live()
			if g.objects.Apply(ev) {
				g.objectsChanged(score, live)
			}
		}
	default:
		g.log.Debug().Str("event", out.Event).Msg("unhandled event")
	}
}

func (g *Game) decode(out proto.Outbound, v any) bool {
	if err := out.Decode(v); err != nil {
		g.log.Warn().Err(err).Msg("decode frame")
		return false
	}
	return true
}

func (g *Game) handleError(e *proto.Error) {
	if e == nil {
		return
	}
	switch e.Op {
	case proto.InboundTypeHello:
		wasConnecting := g.session.State() == peer.StateConnecting
		err := g.session.HandleHelloRejected(e)
		if wasConnecting {
			g.teardown()
			g.emit(Event{Kind: EventDisconnected, Err: g.session.LastDisconnect()})
		}
		g.emit(Event{Kind: EventError, Err: err})
	case proto.InboundTypeLeaveRoom:
		leaving := g.room.State() == peer.RoomLeaving
		info := g.room.Info()
		err := g.room.HandleError(e)
		if leaving && g.room.State() == peer.RoomNone {
			// The relay no longer has us; finish the leave locally.
			g.leftRoom(info)
			return
		}
		g.emit(Event{Kind: EventError, Err: err})
	case proto.InboundTypeCreateRoom, proto.InboundTypeJoinRoom, proto.InboundTypeJoinRandom:
		err := g.room.HandleError(e)
		if e.Op == proto.InboundTypeCreateRoom && errors.Is(err, peer.ErrNotInDirectoryScope) {
			if scopeErr := g.directory.EnterScope(); scopeErr != nil {
				g.log.Warn().Err(scopeErr).Msg("enter lobby for create")
			}
		}
		g.emit(Event{Kind: EventError, Err: err})
	default:
		g.log.Warn().Str("op", e.Op).Str("code", e.Code).Msg(e.Msg)
		g.emit(Event{Kind: EventError, Err: peer.ErrorFromCode(e)})
	}
}

// enterRoom installs a join snapshot. The relay has dropped the lobby
// subscription, and buffered events replay before authority is decided.
func (g *Game) enterRoom(snap proto.RoomSnapshot) {
	g.directory.Reset()
	g.stopSettle()
	g.player = 0

	g.room.HandleSnapshot(snap)
	g.channel.Reset(snap.ActorID)
	g.objects.Bind(snap.ActorID)
	for _, ev := range snap.Buffered {
		g.objects.Apply(ev)
	}
	g.objects.SetAuthority(g.room.IsMaster())

	g.emit(Event{Kind: EventRoomJoined, Room: g.room.Info(), Members: g.room.Members()})
	if snap.Started {
		g.beginSession()
	}
}

func (g *Game) memberLeft(m proto.MemberData) {
	migrated := g.room.HandleMemberLeft(m)
	if n := g.channel.RemoveOwner(m.ActorID); n > 0 {
		g.log.Debug().Int("actor", m.ActorID).Int("entities", n).Msg("dropped departed entities")
	}
	g.objects.SetAuthority(g.room.IsMaster())
	g.emit(Event{Kind: EventMembersChanged, Room: g.room.Info(), Members: g.room.Members()})
	if migrated {
		g.emit(Event{Kind: EventMasterChanged, Master: g.room.MasterID(), Members: g.room.Members()})
	}
}

// beginSession waits for the scene to settle before spawning the player.
func (g *Game) beginSession() {
	if g.settle != nil || g.player != 0 {
		return
	}
	g.settle = g.sched.After(g.cfg.SettleDelay, func() {
		g.settle = nil
		if !g.session.Connected() || !g.room.InRoom() {
			g.emit(Event{Kind: EventReturnToLobby, Scene: g.cfg.LobbyScene})
			return
		}
		g.spawnPlayer()
	})
}

func (g *Game) spawnPlayer() {
	actor := g.room.ActorID()
	id := replication.NewEntityID(actor, playerSlot)
	pos := g.spawnPoint()
	if _, err := g.channel.Register(id, actor, pos, replication.Identity()); err != nil {
		g.log.Error().Err(err).Msg("spawn player")
		return
	}
	g.player = id
	g.log.Info().Str("room", g.room.Info().Name).Int("actor", actor).Str("entity", id.String()).Msg("player spawned")
	g.emit(Event{Kind: EventPlayerSpawned, Entity: id})
}

func (g *Game) spawnPoint() replication.Vec3 {
	if len(g.cfg.SpawnPoints) == 0 {
		return replication.Vec3{Y: 1}
	}
	return vec(g.cfg.SpawnPoints[g.rng.IntN(len(g.cfg.SpawnPoints))])
}

func (g *Game) stopSettle() {
	if g.settle != nil {
		g.settle.Stop()
		g.settle = nil
	}
}

// leftRoom finishes a leave: everything room-scoped stops and the lobby is
// re-entered.
func (g *Game) leftRoom(info peer.RoomInfo) {
	g.teardownRoom()
	g.emit(Event{Kind: EventRoomLeft, Room: info})
	if err := g.directory.EnterScope(); err != nil {
		g.log.Warn().Err(err).Msg("return to lobby")
	}
}

// teardownRoom stops spawning, replication and the pending settle wait.
func (g *Game) teardownRoom() {
	playing := g.player != 0 || g.settle != nil
	g.stopSettle()
	g.player = 0
	g.objects.Reset()
	g.channel.Reset(0)
	g.room.Reset()
	if playing {
		g.emit(Event{Kind: EventReturnToLobby, Scene: g.cfg.LobbyScene})
	}
}

func (g *Game) teardown() {
	g.teardownRoom()
	g.directory.Reset()
}

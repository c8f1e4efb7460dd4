package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/game"
	"github.com/vovakirdan/peerlink/internal/log"
	"github.com/vovakirdan/peerlink/internal/peer"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
	"github.com/vovakirdan/peerlink/internal/transport/ws"
)

const (
	botTick     = 100 * time.Millisecond
	botSpeed    = 3.0
	statusEvery = 5 * time.Second
	wanderRange = 10.0
)

type options struct {
	configPath string
	logLevel   string
	name       string
	room       string
	relayURL   string
	start      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "peer",
		Short:         "Headless peerlink bot: joins a room, plays and collects objects",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log level")
	cmd.Flags().StringVar(&opts.name, "name", "", "nickname (random when empty)")
	cmd.Flags().StringVar(&opts.room, "room", "", "room to join or create; join a random room when empty")
	cmd.Flags().StringVar(&opts.relayURL, "relay-url", "", "override peer.relay_url")
	cmd.Flags().BoolVar(&opts.start, "start", true, "start the session when this bot is master")
	return cmd
}

func run(parent context.Context, opts *options) error {
	bootstrap := log.New("info")
	cfg, _, err := config.Load(bootstrap, opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.relayURL != "" {
		cfg.Peer.RelayURL = opts.relayURL
	}
	if opts.name == "" {
		opts.name = fmt.Sprintf("bot-%04d", rand.IntN(10000))
	}
	logger := log.New(cfg.LogLevel)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := ws.New(cfg.Peer.RelayURL, ws.Options{}, log.Component(logger, "ws"))
	runner := game.NewRunner(cfg.Peer, transport, log.Component(logger, "game"))

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	if err := runner.Connect(ctx, opts.name); err != nil {
		stop()
		<-runErr
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info().Str("nickname", opts.name).Str("relay", cfg.Peer.RelayURL).Msg("connecting")

	b := &bot{runner: runner, opts: opts, log: logger, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	b.loop(ctx)

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("peer stopped")
	return nil
}

type bot struct {
	runner  *game.Runner
	opts    *options
	log     *zerolog.Logger
	rng     *rand.Rand
	target  replication.Vec3
	pending bool
	spawned bool
}

func (b *bot) loop(ctx context.Context) {
	ticker := time.NewTicker(botTick)
	defer ticker.Stop()
	status := time.NewTicker(statusEvery)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.runner.Events():
			b.handle(ctx, ev)
		case <-ticker.C:
			b.step(ctx)
		case <-status.C:
			b.report(ctx)
		}
	}
}

func (b *bot) handle(ctx context.Context, ev game.Event) {
	switch ev.Kind {
	case game.EventConnected:
		b.log.Info().Msg("connected to master")
	case game.EventDisconnected:
		b.spawned = false
		b.log.Warn().Err(ev.Err).Msg("disconnected")
	case game.EventRoomJoined:
		b.pending = false
		b.log.Info().Str("room", ev.Room.Name).Int("actor", ev.Room.ActorID).Int("master", ev.Master).Msg("joined room")
		b.maybeStart(ctx)
	case game.EventMasterChanged:
		b.log.Info().Int("master", ev.Master).Msg("master changed")
		b.maybeStart(ctx)
	case game.EventMembersChanged:
		b.log.Info().Int("members", len(ev.Members)).Msg("members changed")
	case game.EventPlayerSpawned:
		b.spawned = true
		b.log.Info().Stringer("entity", ev.Entity).Msg("player spawned")
	case game.EventReturnToLobby:
		b.spawned = false
		b.log.Info().Str("scene", ev.Scene).Msg("back to lobby")
	case game.EventRoomLeft:
		b.spawned = false
		b.pending = false
	case game.EventScoreChanged:
		b.log.Info().Int("score", ev.Score).Msg("score")
	case game.EventError:
		b.pending = false
		b.log.Warn().Err(ev.Err).Msg("game error")
	}
}

func (b *bot) maybeStart(ctx context.Context) {
	if !b.opts.start {
		return
	}
	st, err := b.runner.Status(ctx)
	if err != nil || !st.Master || st.Room.Started {
		return
	}
	if err := b.runner.StartSession(ctx); err != nil {
		b.log.Warn().Err(err).Msg("start session")
	}
}

// step enters a room once the lobby is reachable and otherwise steers the
// player toward the nearest object.
func (b *bot) step(ctx context.Context) {
	st, err := b.runner.Status(ctx)
	if err != nil {
		return
	}
	if st.State != peer.StateConnectedToMaster {
		return
	}
	if st.RoomState == peer.RoomNone && st.Scope == peer.ScopeIn && !b.pending {
		b.enterRoom(ctx)
		return
	}
	if b.spawned {
		b.wander(ctx)
	}
}

func (b *bot) enterRoom(ctx context.Context) {
	b.pending = true
	var err error
	switch {
	case b.opts.room == "":
		err = b.runner.JoinRandom(ctx)
		if errors.Is(err, peer.ErrNoRoomsAvailable) {
			err = b.runner.CreateRoom(ctx, fmt.Sprintf("room-%s", b.opts.name), 0)
		}
	default:
		rooms, _ := b.runner.RefreshRooms(ctx)
		if listed(rooms, b.opts.room) {
			err = b.runner.JoinRoom(ctx, b.opts.room)
		} else {
			err = b.runner.CreateRoom(ctx, b.opts.room, 0)
		}
	}
	if err != nil {
		b.pending = false
		b.log.Debug().Err(err).Msg("enter room")
	}
}

func listed(rooms []proto.RoomSummary, name string) bool {
	for _, r := range rooms {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (b *bot) wander(ctx context.Context) {
	var (
		me      replication.Entity
		ok      bool
		objects []replication.Vec3
	)
	if err := b.runner.Do(ctx, func(g *game.Game) {
		me, ok = g.Player()
		for _, o := range g.Objects() {
			objects = append(objects, o.Position)
		}
	}); err != nil || !ok {
		return
	}

	target := b.target
	if len(objects) > 0 {
		target = nearest(me.Position, objects)
	} else if me.Position.Dist(b.target) < 0.5 {
		b.target = replication.Vec3{
			X: (b.rng.Float64()*2 - 1) * wanderRange,
			Y: me.Position.Y,
			Z: (b.rng.Float64()*2 - 1) * wanderRange,
		}
		target = b.target
	}

	delta := target.Sub(me.Position)
	dist := delta.Len()
	if dist == 0 {
		return
	}
	stepLen := math.Min(dist, botSpeed*botTick.Seconds())
	vel := delta.Scale(botSpeed / dist)
	pos := me.Position.Add(delta.Scale(stepLen / dist))
	rot := replication.YawQuat(math.Atan2(delta.X, delta.Z))
	if err := b.runner.Move(ctx, pos, rot, vel); err != nil && !errors.Is(err, game.ErrNoPlayer) {
		b.log.Debug().Err(err).Msg("move")
	}
}

func nearest(from replication.Vec3, points []replication.Vec3) replication.Vec3 {
	best := points[0]
	for _, p := range points[1:] {
		if from.Dist(p) < from.Dist(best) {
			best = p
		}
	}
	return best
}

func (b *bot) report(ctx context.Context) {
	st, err := b.runner.Status(ctx)
	if err != nil {
		return
	}
	b.log.Info().
		Stringer("state", st.State).
		Stringer("room_state", st.RoomState).
		Str("room", st.Room.Name).
		Bool("master", st.Master).
		Int("members", len(st.Members)).
		Int("score", st.Score).
		Int("objects", st.Objects).
		Int("entities", st.Entities).
		Msg("status")
}

package game

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/peer"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
	"github.com/vovakirdan/peerlink/internal/sched"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("game loop stopped")

const postBuffer = 64

type call struct {
	fn   func(*Game)
	done chan struct{}
}

// Runner owns the goroutine that drives a Game: transport frames, scheduled
// callbacks, the frame ticker and API calls are all serialized through Run.
type Runner struct {
	game      *Game
	loop      *sched.Loop
	transport peer.Transport
	interval  time.Duration
	calls     chan call
	stopped   chan struct{}
	log       *zerolog.Logger
}

// NewRunner creates a runner with a wall-clock scheduler.
func NewRunner(cfg config.PeerConfig, t peer.Transport, logger *zerolog.Logger) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	loop := sched.NewLoop(postBuffer)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return &Runner{
		game:      New(cfg, t, loop, rng, logger),
		loop:      loop,
		transport: t,
		interval:  cfg.FrameInterval(),
		calls:     make(chan call),
		stopped:   make(chan struct{}),
		log:       logger,
	}
}

// Events is the game event stream.
func (r *Runner) Events() <-chan Event {
	return r.game.Events()
}

// Run drives the game until ctx is done. The peer disconnects on the way out.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	defer r.loop.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	last := time.Now()

	r.log.Debug().Dur("frame", r.interval).Msg("game loop started")
	for {
		select {
		case <-ctx.Done():
			if err := r.game.Disconnect(); err != nil {
				r.log.Debug().Err(err).Msg("disconnect on shutdown")
			}
			return ctx.Err()
		case out := <-r.transport.Frames():
			r.game.Handle(out)
		case fn := <-r.loop.C():
			fn()
		case now := <-ticker.C:
			r.game.Frame(now.Sub(last))
			last = now
		case c := <-r.calls:
			c.fn(r.game)
			close(c.done)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it.
func (r *Runner) Do(ctx context.Context, fn func(g *Game)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case r.calls <- c:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

func (r *Runner) exec(ctx context.Context, fn func(g *Game) error) error {
	var err error
	if doErr := r.Do(ctx, func(g *Game) { err = fn(g) }); doErr != nil {
		return doErr
	}
	return err
}

func (r *Runner) Connect(ctx context.Context, nickname string) error {
	return r.exec(ctx, func(g *Game) error { return g.Connect(nickname) })
}

func (r *Runner) Disconnect(ctx context.Context) error {
	return r.exec(ctx, (*Game).Disconnect)
}

func (r *Runner) CreateRoom(ctx context.Context, name string, maxPlayers int) error {
	return r.exec(ctx, func(g *Game) error { return g.CreateRoom(name, maxPlayers) })
}

func (r *Runner) JoinRoom(ctx context.Context, name string) error {
	return r.exec(ctx, func(g *Game) error { return g.JoinRoom(name) })
}

func (r *Runner) JoinRandom(ctx context.Context) error {
	return r.exec(ctx, (*Game).JoinRandom)
}

func (r *Runner) LeaveRoom(ctx context.Context) error {
	return r.exec(ctx, (*Game).LeaveRoom)
}

func (r *Runner) StartSession(ctx context.Context) error {
	return r.exec(ctx, (*Game).StartSession)
}

// RefreshRooms returns the cached listing, or nil while a refresh is in flight.
func (r *Runner) RefreshRooms(ctx context.Context) ([]proto.RoomSummary, error) {
	var rooms []proto.RoomSummary
	err := r.exec(ctx, func(g *Game) error {
		var err error
		rooms, err = g.RefreshRooms()
		return err
	})
	return rooms, err
}

func (r *Runner) Move(ctx context.Context, pos replication.Vec3, rot replication.Quat, vel replication.Vec3) error {
	return r.exec(ctx, func(g *Game) error { return g.Move(pos, rot, vel) })
}

// Status returns a snapshot taken on the loop goroutine.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	var st Status
	err := r.Do(ctx, func(g *Game) { st = g.Status() })
	return st, err
}

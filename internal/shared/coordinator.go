// Package shared keeps the room's master-owned world objects in sync: the
// master spawns and destroys them, any peer may collect them, and every peer
// applies each collect at most once.
package shared

import (
	"encoding/json"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/replication"
	"github.com/vovakirdan/peerlink/internal/sched"
)

// Config is the spawn policy.
type Config struct {
	Target        int
	Interval      time.Duration
	PointsValue   int
	CollectRadius float64
	Points        []replication.Vec3
	UseArea       bool
	AreaCenter    replication.Vec3
	AreaSize      replication.Vec3
}

// Raiser publishes room events to the other members.
type Raiser interface {
	Raise(ev proto.RaiseData) error
}

// Coordinator owns the shared objects of the current room.
type Coordinator struct {
	cfg    Config
	raiser Raiser
	sched  sched.Scheduler
	rng    *rand.Rand
	log    *zerolog.Logger

	// NewID allocates object ids.
	NewID func() string

	local     int
	master    bool
	score     int
	objects   map[string]*Object
	destroyed map[string]struct{}
	spawnLoop sched.Task
}

// NewCoordinator creates a coordinator with no authority.
func NewCoordinator(cfg Config, raiser Raiser, s sched.Scheduler, rng *rand.Rand, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Coordinator{
		cfg:       cfg,
		raiser:    raiser,
		sched:     s,
		rng:       rng,
		log:       logger,
		NewID:     uuid.NewString,
		objects:   make(map[string]*Object),
		destroyed: make(map[string]struct{}),
	}
}

// Bind attaches the coordinator to the local actor of a freshly joined room.
func (c *Coordinator) Bind(localActor int) {
	c.Reset()
	c.local = localActor
}

// Score returns the points collected by the local actor.
func (c *Coordinator) Score() int { return c.score }

// IsAuthority reports whether this peer spawns and destroys objects.
func (c *Coordinator) IsAuthority() bool { return c.master }

// Live counts objects that have not been destroyed.
func (c *Coordinator) Live() int { return len(c.objects) }

// Object returns a copy of an object.
func (c *Coordinator) Object(id string) (Object, bool) {
	o, ok := c.objects[id]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Objects returns copies of the live objects ordered by id.
func (c *Coordinator) Objects() []Object {
	out := make([]Object, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetAuthority follows the room's master flag. Gaining authority destroys
// objects collected under the previous master and starts the spawn loop;
// losing it stops the loop.
func (c *Coordinator) SetAuthority(master bool) {
	if master == c.master {
		return
	}
	c.master = master
	if !master {
		c.stopLoop()
		c.log.Info().Int("actor", c.local).Msg("spawn authority released")
		return
	}

	c.log.Info().Int("actor", c.local).Msg("spawn authority acquired")
	for _, o := range c.Objects() {
		if o.State == Collected {
			c.destroy(c.objects[o.ID])
		}
	}
	if c.cfg.Target <= 0 {
		return
	}
	c.spawnCheck()
	c.spawnLoop = c.sched.Every(c.cfg.Interval, c.spawnCheck)
}

// spawnCheck spawns a single object when the room is below target.
func (c *Coordinator) spawnCheck() {
	if !c.master || len(c.objects) >= c.cfg.Target {
		return
	}
	obj := &Object{
		ID:       c.NewID(),
		Position: c.spawnPosition(),
		Points:   c.cfg.PointsValue,
		State:    Spawned,
	}
	c.objects[obj.ID] = obj

	payload, _ := json.Marshal(proto.SpawnPayload{Position: obj.Position.Array(), Points: obj.Points})
	c.raise(proto.RaiseData{Kind: proto.RaiseSpawn, Object: obj.ID, Buffered: true, Payload: payload})
	c.log.Debug().Str("object_id", obj.ID).Int("live", len(c.objects)).Msg("object spawned")
}

func (c *Coordinator) spawnPosition() replication.Vec3 {
	switch {
	case c.cfg.UseArea:
		x := (c.rng.Float64() - 0.5) * c.cfg.AreaSize.X
		z := (c.rng.Float64() - 0.5) * c.cfg.AreaSize.Z
		return c.cfg.AreaCenter.Add(replication.Vec3{X: x, Y: 1, Z: z})
	case len(c.cfg.Points) > 0:
		return c.cfg.Points[c.rng.IntN(len(c.cfg.Points))]
	default:
		return replication.Vec3{X: c.rng.Float64()*20 - 10, Y: 1, Z: c.rng.Float64()*20 - 10}
	}
}

// TryCollect is called when the local player touches an object. It reports
// whether this call collected it.
func (c *Coordinator) TryCollect(id string) bool {
	obj, ok := c.objects[id]
	if !ok || obj.State != Spawned || c.local == 0 {
		return false
	}
	payload, _ := json.Marshal(proto.CollectPayload{Collector: c.local})
	c.raise(proto.RaiseData{Kind: proto.RaiseCollect, Object: id, Buffered: true, Payload: payload})
	return c.collect(obj, c.local)
}

// CollectNear collects every spawned object within the collect radius.
func (c *Coordinator) CollectNear(pos replication.Vec3) []string {
	var got []string
	for _, o := range c.Objects() {
		if o.State == Spawned && o.Position.Dist(pos) <= c.cfg.CollectRadius && c.TryCollect(o.ID) {
			got = append(got, o.ID)
		}
	}
	return got
}

// Apply consumes a room event raised by another peer, live or replayed from
// the room buffer. It reports whether local state changed.
func (c *Coordinator) Apply(ev proto.RaiseData) bool {
	switch ev.Kind {
	case proto.RaiseSpawn:
		return c.applySpawn(ev)
	case proto.RaiseCollect:
		return c.applyCollect(ev)
	case proto.RaiseDestroy:
		return c.applyDestroy(ev.Object)
	default:
		return false
	}
}

func (c *Coordinator) applySpawn(ev proto.RaiseData) bool {
	if _, gone := c.destroyed[ev.Object]; gone {
		return false
	}
	if _, exists := c.objects[ev.Object]; exists {
		return false
	}
	var p proto.SpawnPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.log.Warn().Err(err).Str("object_id", ev.Object).Msg("bad spawn payload")
			return false
		}
	}
	c.objects[ev.Object] = &Object{
		ID:       ev.Object,
		Position: replication.Vec3From(p.Position),
		Points:   p.Points,
		State:    Spawned,
	}
	return true
}

func (c *Coordinator) applyCollect(ev proto.RaiseData) bool {
	obj, ok := c.objects[ev.Object]
	if !ok || obj.State != Spawned {
		return false
	}
	collector := ev.Actor
	var p proto.CollectPayload
	if len(ev.Payload) > 0 && json.Unmarshal(ev.Payload, &p) == nil && p.Collector != 0 {
		collector = p.Collector
	}
	return c.collect(obj, collector)
}

// collect runs the Spawned -> Collected transition and its side effects.
func (c *Coordinator) collect(obj *Object, collector int) bool {
	obj.State = Collected
	obj.CollectedBy = collector
	c.log.Debug().Str("object_id", obj.ID).Int("collector", collector).Msg("object collected")

	if collector == c.local {
		c.score += obj.Points
		c.log.Info().Int("score", c.score).Int("points", obj.Points).Msg("score updated")
	}
	if c.master {
		c.destroy(obj)
	}
	return true
}

func (c *Coordinator) destroy(obj *Object) {
	obj.State = Destroyed
	delete(c.objects, obj.ID)
	c.destroyed[obj.ID] = struct{}{}
	c.raise(proto.RaiseData{Kind: proto.RaiseDestroy, Object: obj.ID})
	c.log.Debug().Str("object_id", obj.ID).Int("live", len(c.objects)).Msg("object destroyed")
}

func (c *Coordinator) applyDestroy(id string) bool {
	if _, gone := c.destroyed[id]; gone {
		return false
	}
	c.destroyed[id] = struct{}{}
	if _, ok := c.objects[id]; !ok {
		return false
	}
	delete(c.objects, id)
	return true
}

func (c *Coordinator) raise(ev proto.RaiseData) {
	if c.raiser == nil {
		return
	}
	if err := c.raiser.Raise(ev); err != nil {
		c.log.Warn().Err(err).Str("kind", ev.Kind).Str("object_id", ev.Object).Msg("raise failed")
	}
}

// Reset stops the spawn loop and forgets every object.
func (c *Coordinator) Reset() {
	c.stopLoop()
	c.master = false
	c.score = 0
	c.local = 0
	clear(c.objects)
	clear(c.destroyed)
}

func (c *Coordinator) stopLoop() {
	if c.spawnLoop != nil {
		c.spawnLoop.Stop()
		c.spawnLoop = nil
	}
}

// Package replication streams the state of locally owned entities and smooths
// the state of entities owned by other peers.
package replication

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
)

var (
	ErrNotOwner      = errors.New("entity is owned by another actor")
	ErrUnknownEntity = errors.New("unknown entity")
	ErrEntityExists  = errors.New("entity already registered")
	ErrInvalidEntity = errors.New("entity id does not belong to its owner")
)

// Config controls remote smoothing.
type Config struct {
	// SmoothingRate is the fraction of the remaining gap closed per second.
	SmoothingRate float64
	// MaxFrameDelta caps the elapsed time used for one smoothing step, so a
	// frame hitch cannot turn into a snap.
	MaxFrameDelta time.Duration
	// RejectStaleSamples drops samples whose sequence is not newer than the
	// last applied one.
	RejectStaleSamples bool
}

// Channel holds every replicated entity known to the peer.
type Channel struct {
	cfg      Config
	local    int
	entities map[EntityID]*Entity
	log      *zerolog.Logger
}

// NewChannel creates a channel for the given local actor.
func NewChannel(localActor int, cfg Config, logger *zerolog.Logger) *Channel {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Channel{
		cfg:      cfg,
		local:    localActor,
		entities: make(map[EntityID]*Entity),
		log:      logger,
	}
}

// LocalActor returns the actor whose entities are written locally.
func (c *Channel) LocalActor() int { return c.local }

// Register adds an entity. Entities owned by the local actor are written
// through SetLocalState; all others only through Apply.
func (c *Channel) Register(id EntityID, owner int, pos Vec3, rot Quat) (*Entity, error) {
	if id == 0 || id.Actor() != owner {
		return nil, fmt.Errorf("register %s owner %d: %w", id, owner, ErrInvalidEntity)
	}
	if _, exists := c.entities[id]; exists {
		return nil, fmt.Errorf("register %s: %w", id, ErrEntityExists)
	}
	rot = rot.Normalize()
	e := &Entity{
		ID:             id,
		Owner:          owner,
		Position:       pos,
		Rotation:       rot,
		RenderPosition: pos,
		RenderRotation: rot,
	}
	c.entities[id] = e
	c.log.Debug().Str("entity", id.String()).Int("owner", owner).Bool("local", owner == c.local).Msg("entity registered")
	return e, nil
}

// SetLocalState writes the authoritative state of an owned entity.
func (c *Channel) SetLocalState(id EntityID, pos Vec3, rot Quat, vel Vec3) error {
	e, ok := c.entities[id]
	if !ok {
		return fmt.Errorf("set state %s: %w", id, ErrUnknownEntity)
	}
	if !e.Owned(c.local) {
		return fmt.Errorf("set state %s: %w", id, ErrNotOwner)
	}
	e.Position = pos
	e.Rotation = rot.Normalize()
	e.Velocity = vel
	e.RenderPosition = e.Position
	e.RenderRotation = e.Rotation
	return nil
}

// Tick runs once per frame. It returns one sample per owned entity and moves
// every remote render transform toward its latest sample.
func (c *Channel) Tick(dt time.Duration) []proto.StateData {
	alpha := c.Alpha(dt)
	out := make([]proto.StateData, 0)
	for _, id := range c.ids() {
		e := c.entities[id]
		if e.Owned(c.local) {
			e.Seq++
			out = append(out, proto.StateData{
				Entity:   uint32(e.ID),
				Owner:    e.Owner,
				Seq:      e.Seq,
				Position: e.Position.Array(),
				Rotation: e.Rotation.Array(),
				Velocity: e.Velocity.Array(),
			})
			continue
		}
		e.RenderPosition = e.RenderPosition.Lerp(e.Position, alpha)
		e.RenderRotation = e.RenderRotation.Lerp(e.Rotation, alpha)
	}
	return out
}

// Alpha is the interpolation factor applied for a frame of length dt.
func (c *Channel) Alpha(dt time.Duration) float64 {
	if c.cfg.MaxFrameDelta > 0 && dt > c.cfg.MaxFrameDelta {
		dt = c.cfg.MaxFrameDelta
	}
	return clamp01(c.cfg.SmoothingRate * dt.Seconds())
}

// Apply consumes a sample from the relay. Samples for locally owned entities
// are ignored, as are samples whose sender is not the entity's owner; the
// first sample of an unknown entity creates its shadow. It reports whether the
// sample was applied.
func (c *Channel) Apply(sample proto.StateData) bool {
	id := EntityID(sample.Entity)
	owner := sample.Owner
	if owner == 0 {
		owner = id.Actor()
	}
	if owner == c.local {
		c.log.Debug().Str("entity", id.String()).Msg("ignoring sample for owned entity")
		return false
	}

	pos := Vec3From(sample.Position)
	rot := QuatFrom(sample.Rotation)
	e, ok := c.entities[id]
	if ok && e.Owner != owner {
		c.log.Warn().Str("entity", id.String()).Int("owner", e.Owner).Int("sender", owner).Msg("dropping sample from non-owner")
		return false
	}
	if !ok {
		var err error
		if e, err = c.Register(id, owner, pos, rot); err != nil {
			c.log.Warn().Err(err).Msg("dropping sample")
			return false
		}
	}
	if e.Owned(c.local) {
		return false
	}
	if c.cfg.RejectStaleSamples && ok && sample.Seq <= e.Seq {
		return false
	}

	e.Seq = sample.Seq
	e.Position = pos
	e.Rotation = rot
	e.Velocity = Vec3From(sample.Velocity)
	return true
}

// Entity returns a copy of the entity state.
func (c *Channel) Entity(id EntityID) (Entity, bool) {
	e, ok := c.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Entities returns copies of every entity ordered by id.
func (c *Channel) Entities() []Entity {
	out := make([]Entity, 0, len(c.entities))
	for _, id := range c.ids() {
		out = append(out, *c.entities[id])
	}
	return out
}

// Extrapolate predicts where a remote entity will be after ahead, using the
// latest received velocity. It is a presentation aid only.
func (c *Channel) Extrapolate(id EntityID, ahead time.Duration) (Vec3, bool) {
	e, ok := c.entities[id]
	if !ok {
		return Vec3{}, false
	}
	return e.RenderPosition.Add(e.Velocity.Scale(ahead.Seconds())), true
}

// Remove forgets an entity.
func (c *Channel) Remove(id EntityID) {
	delete(c.entities, id)
}

// RemoveOwner forgets every entity of an actor that left the room.
func (c *Channel) RemoveOwner(actor int) int {
	removed := 0
	for id, e := range c.entities {
		if e.Owner == actor {
			delete(c.entities, id)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug().Int("actor", actor).Int("entities", removed).Msg("owner entities removed")
	}
	return removed
}

// Reset forgets everything and rebinds the local actor.
func (c *Channel) Reset(localActor int) {
	clear(c.entities)
	c.local = localActor
}

func (c *Channel) ids() []EntityID {
	ids := make([]EntityID, 0, len(c.entities))
	for id := range c.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

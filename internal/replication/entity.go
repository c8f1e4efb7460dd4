package replication

import (
	"fmt"
	"math"
)

// EntityID identifies a replicated entity within a room. The owner's actor id
// is encoded in the high part, so ids never collide between peers.
type EntityID uint32

const idsPerActor = 1000

// MaxEntitiesPerActor bounds n in NewEntityID. A larger n would spill into the
// next actor's range.
const MaxEntitiesPerActor = idsPerActor - 1

// NewEntityID builds the n-th entity id of an actor, n in [1, MaxEntitiesPerActor].
// Out-of-range input yields the zero id, which Register rejects.
func NewEntityID(actor, n int) EntityID {
	if actor <= 0 || n < 1 || n > MaxEntitiesPerActor {
		return 0
	}
	id := uint64(actor)*idsPerActor + uint64(n)
	if id > math.MaxUint32 {
		return 0
	}
	return EntityID(id)
}

// Actor returns the actor that allocated the id.
func (id EntityID) Actor() int {
	return int(id) / idsPerActor
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}

// Entity is a replicated object. For owned entities Position, Rotation and
// Velocity are authoritative and written locally. For remote entities they hold
// the latest received sample, and Render* is what the peer shows.
type Entity struct {
	ID       EntityID
	Owner    int
	Seq      uint64
	Position Vec3
	Rotation Quat
	Velocity Vec3

	RenderPosition Vec3
	RenderRotation Quat
}

// Owned reports whether the local actor writes this entity.
func (e *Entity) Owned(local int) bool {
	return e.Owner == local
}

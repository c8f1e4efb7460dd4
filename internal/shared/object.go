package shared

import "github.com/vovakirdan/peerlink/internal/replication"

// ObjectState is the one-way lifecycle of a shared object.
type ObjectState int

const (
	Spawned ObjectState = iota
	Collected
	Destroyed
)

func (s ObjectState) String() string {
	switch s {
	case Collected:
		return "collected"
	case Destroyed:
		return "destroyed"
	default:
		return "spawned"
	}
}

// Object is a master-spawned world object.
type Object struct {
	ID          string
	Position    replication.Vec3
	Points      int
	State       ObjectState
	CollectedBy int
}

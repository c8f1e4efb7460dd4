package relay

import (
	"sort"

	"github.com/vovakirdan/peerlink/internal/proto"
)

// Room groups the actors playing together. Rooms are scoped by game version.
type Room struct {
	Name       string
	Version    string
	MaxPlayers int // 0 means unlimited
	Visible    bool
	Open       bool
	Started    bool

	nextActor int
	masterID  int
	members   map[int]*Client
	destroyed map[string]struct{}
}

// NewRoom constructs an empty room.
func NewRoom(version string, opts proto.CreateRoomData) *Room {
	return &Room{
		Name:       opts.Room,
		Version:    version,
		MaxPlayers: opts.MaxPlayers,
		Visible:    opts.Visible,
		Open:       opts.Open,
		nextActor:  1,
		members:    make(map[int]*Client),
		destroyed:  make(map[string]struct{}),
	}
}

// Key identifies the room in the buffered event log.
func (r *Room) Key() string {
	return r.Version + "/" + r.Name
}

// MarkDestroyed records that the object is gone for good.
func (r *Room) MarkDestroyed(object string) {
	r.destroyed[object] = struct{}{}
}

// Destroyed reports whether the object was destroyed in this room.
func (r *Room) Destroyed(object string) bool {
	_, ok := r.destroyed[object]
	return ok
}

// AddClient assigns the next actor id to the client. The first actor becomes master.
func (r *Room) AddClient(c *Client) int {
	actor := r.nextActor
	r.nextActor++
	r.members[actor] = c
	c.room = r
	c.actorID = actor
	if r.masterID == 0 {
		r.masterID = actor
	}
	return actor
}

// RemoveActor deletes the actor. When the master leaves, the lowest remaining
// actor id takes over and migrated is true.
func (r *Room) RemoveActor(actor int) (migrated bool) {
	c, ok := r.members[actor]
	if !ok {
		return false
	}
	delete(r.members, actor)
	c.room = nil
	c.actorID = 0

	if actor != r.masterID {
		return false
	}
	r.masterID = 0
	for id := range r.members {
		if r.masterID == 0 || id < r.masterID {
			r.masterID = id
		}
	}
	return r.masterID != 0
}

// MasterID returns the current master actor, or 0 for an empty room.
func (r *Room) MasterID() int {
	return r.masterID
}

// Member returns the client bound to the actor id.
func (r *Room) Member(actor int) (*Client, bool) {
	c, ok := r.members[actor]
	return c, ok
}

// Full reports whether no more actors can join.
func (r *Room) Full() bool {
	return r.MaxPlayers > 0 && len(r.members) >= r.MaxPlayers
}

// Joinable reports whether matchmaking may place a peer into the room.
func (r *Room) Joinable() bool {
	return r.Open && r.Visible && !r.Full()
}

// Empty returns true if no actors are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Summary describes the room for directory batches.
func (r *Room) Summary() proto.RoomSummary {
	return proto.RoomSummary{
		Name:        r.Name,
		PlayerCount: len(r.members),
		MaxPlayers:  r.MaxPlayers,
		Visible:     r.Visible,
		Open:        r.Open,
	}
}

// Members lists actors ordered by actor id.
func (r *Room) Members() []proto.Member {
	out := make([]proto.Member, 0, len(r.members))
	for id, c := range r.members {
		out = append(out, proto.Member{ActorID: id, Nickname: c.name, Master: id == r.masterID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

// Clients returns the member clients except the given one.
func (r *Room) Clients(except *Client) []*Client {
	out := make([]*Client, 0, len(r.members))
	for _, c := range r.members {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

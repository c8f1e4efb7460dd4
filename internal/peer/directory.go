package peer

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/sched"
)

// Scope is the state of the lobby subscription.
type Scope int

const (
	ScopeOut Scope = iota
	ScopeEntering
	ScopeIn
	ScopeLeaving
)

type connectivity interface {
	Connected() bool
}

// Directory caches room summaries received while in the lobby scope.
type Directory struct {
	sender  Sender
	conn    connectivity
	sched   sched.Scheduler
	delay   time.Duration
	rooms   map[string]proto.RoomSummary
	scope   Scope
	refresh sched.Task
	log     *zerolog.Logger
}

// NewDirectory creates an empty directory. refreshDelay is the pause between
// leaving and re-entering the scope during a forced refresh.
func NewDirectory(sender Sender, conn connectivity, s sched.Scheduler, refreshDelay time.Duration, logger *zerolog.Logger) *Directory {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Directory{
		sender: sender,
		conn:   conn,
		sched:  s,
		delay:  refreshDelay,
		rooms:  make(map[string]proto.RoomSummary),
		log:    logger,
	}
}

// ApplyUpdate merges a batch in order. A removed summary deletes the entry,
// anything else replaces it wholesale.
func (d *Directory) ApplyUpdate(batch []proto.RoomSummary) {
	for _, summary := range batch {
		if summary.Removed {
			delete(d.rooms, summary.Name)
			continue
		}
		d.rooms[summary.Name] = summary
	}
	d.log.Debug().Int("received", len(batch)).Int("cached", len(d.rooms)).Msg("room list updated")
}

// ListVisible returns a snapshot of the visible rooms ordered by name.
func (d *Directory) ListVisible() []proto.RoomSummary {
	out := make([]proto.RoomSummary, 0, len(d.rooms))
	for _, summary := range d.rooms {
		if summary.Visible {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of cached entries, visible or not.
func (d *Directory) Len() int {
	return len(d.rooms)
}

// Clear drops every cached entry.
func (d *Directory) Clear() {
	clear(d.rooms)
}

// Scope returns the subscription state.
func (d *Directory) Scope() Scope {
	return d.scope
}

// InScope reports whether the relay is streaming directory batches.
func (d *Directory) InScope() bool {
	return d.scope == ScopeIn
}

// RefreshPending reports whether a forced refresh is waiting to rejoin.
func (d *Directory) RefreshPending() bool {
	return d.refresh != nil
}

// EnterScope asks the relay for directory batches.
func (d *Directory) EnterScope() error {
	if !d.conn.Connected() {
		return opError("join_lobby", ErrNotConnected)
	}
	if d.scope == ScopeIn || d.scope == ScopeEntering {
		return nil
	}
	if err := send(d.sender, proto.InboundTypeJoinLobby, nil); err != nil {
		return err
	}
	d.scope = ScopeEntering
	return nil
}

// LeaveScope stops directory batches and cancels a pending refresh.
func (d *Directory) LeaveScope() error {
	d.stopRefresh()
	return d.leave()
}

func (d *Directory) leave() error {
	if d.scope == ScopeOut || d.scope == ScopeLeaving {
		return nil
	}
	d.Clear()
	d.scope = ScopeLeaving
	if !d.conn.Connected() {
		d.scope = ScopeOut
		return nil
	}
	return send(d.sender, proto.InboundTypeLeaveLobby, nil)
}

// HandleScopeJoined starts a fresh cache; the relay resends everything.
func (d *Directory) HandleScopeJoined() {
	d.Clear()
	d.scope = ScopeIn
	d.log.Debug().Msg("entered lobby")
}

// HandleScopeLeft marks the subscription as gone. A confirmation that arrives
// after a rejoin was already requested is stale and ignored.
func (d *Directory) HandleScopeLeft() {
	if d.scope == ScopeEntering {
		return
	}
	d.scope = ScopeOut
	d.log.Debug().Msg("left lobby")
}

// Refresh returns the cached listing when there is one. Outside the scope it
// enters it, and with an empty cache it forces exactly one leave/rejoin cycle;
// in both cases the listing arrives later through ApplyUpdate and the
// returned slice is nil.
func (d *Directory) Refresh() ([]proto.RoomSummary, error) {
	if !d.conn.Connected() {
		return nil, opError("refresh", ErrNotConnected)
	}
	if d.refresh != nil {
		return nil, nil
	}
	if !d.InScope() {
		return nil, d.EnterScope()
	}
	if len(d.rooms) > 0 {
		return d.ListVisible(), nil
	}
	d.log.Debug().Dur("delay", d.delay).Msg("empty room cache, forcing refresh")
	if err := d.leave(); err != nil {
		return nil, err
	}
	d.refresh = d.sched.After(d.delay, func() {
		d.refresh = nil
		if err := d.EnterScope(); err != nil {
			d.log.Warn().Err(err).Msg("rejoin lobby after refresh")
		}
	})
	return nil, nil
}

// Reset forgets the scope without talking to the relay. Used when the relay
// drops the subscription implicitly (room entered, link lost).
func (d *Directory) Reset() {
	d.stopRefresh()
	d.Clear()
	d.scope = ScopeOut
}

func (d *Directory) stopRefresh() {
	if d.refresh != nil {
		d.refresh.Stop()
		d.refresh = nil
	}
}

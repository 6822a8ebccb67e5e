package fixture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/roomlist/core"
	"pkt.systems/roomlist/internal/logx"
	"pkt.systems/roomlist/schema"
)

// Directory is an in-memory room store. It resolves room handles for the
// processor and builds summaries from the scripted room data.
type Directory struct {
	mu        sync.Mutex
	rooms     map[schema.RoomID]RoomSpec
	forgotten map[schema.RoomID]struct{}
	revision  uint64
	delay     time.Duration

	open atomic.Int64
}

// NewDirectory indexes the script's rooms.
func NewDirectory(script Script) *Directory {
	d := &Directory{
		rooms:     make(map[schema.RoomID]RoomSpec, len(script.Rooms)),
		forgotten: make(map[schema.RoomID]struct{}),
		delay:     script.BuildDelay,
	}
	for _, room := range script.Rooms {
		d.rooms[room.ID] = room
	}
	return d
}

// Open borrows a handle for id. Rooms the script does not declare resolve to
// a bare handle whose summary carries only the id.
func (d *Directory) Open(id schema.RoomID) core.Room {
	d.mu.Lock()
	spec, ok := d.rooms[id]
	d.mu.Unlock()
	if !ok {
		spec = RoomSpec{ID: id}
	}
	d.open.Add(1)
	return &handle{dir: d, spec: spec}
}

// OpenAll borrows one handle per id, in order.
func (d *Directory) OpenAll(ids []schema.RoomID) []core.Room {
	out := make([]core.Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.Open(id))
	}
	return out
}

// Forget makes later lookups of id resolve to nothing.
func (d *Directory) Forget(ids ...schema.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.forgotten[id] = struct{}{}
	}
}

// Rename changes the display name used by later builds of id.
func (d *Directory) Rename(id schema.RoomID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	spec, ok := d.rooms[id]
	if !ok {
		spec = RoomSpec{ID: id}
	}
	spec.Name = name
	d.rooms[id] = spec
}

// OpenHandles reports handles borrowed and not yet closed.
func (d *Directory) OpenHandles() int64 {
	return d.open.Load()
}

// RoomOrNil resolves a live handle for id.
func (d *Directory) RoomOrNil(_ context.Context, id schema.RoomID) (core.Room, error) {
	d.mu.Lock()
	_, gone := d.forgotten[id]
	d.mu.Unlock()
	if gone {
		return nil, nil
	}
	return d.Open(id), nil
}

// Build produces the summary of room from the latest scripted data.
func (d *Directory) Build(ctx context.Context, room core.Room) (schema.RoomSummary, error) {
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return schema.RoomSummary{}, ctx.Err()
		}
	}
	id := room.ID()
	d.mu.Lock()
	spec, ok := d.rooms[id]
	d.revision++
	revision := d.revision
	d.mu.Unlock()
	if !ok {
		spec = RoomSpec{ID: id}
		logx.WithRoom(ctx, id).Trace("fixture building undeclared room")
	}
	return spec.summary(revision), nil
}

func (s RoomSpec) summary(revision uint64) schema.RoomSummary {
	membership := s.Membership
	if membership == "" {
		membership = schema.MembershipJoined
	}
	summary := schema.RoomSummary{
		RoomID:            s.ID,
		Name:              s.Name,
		CanonicalAlias:    s.Alias,
		AvatarURL:         s.Avatar,
		Membership:        membership,
		IsDirect:          s.Direct,
		IsFavorite:        s.Favorite,
		UnreadMessages:    s.Unread,
		UnreadMentions:    s.Mentions,
		UnreadNotifyCount: s.Unread + s.Mentions,
		Revision:          revision,
	}
	if s.Latest != nil {
		summary.LatestEvent = schema.LatestEvent{
			Sender:    s.Latest.Sender,
			Body:      s.Latest.Body,
			Timestamp: s.Latest.Timestamp,
		}
	}
	return summary
}

type handle struct {
	dir    *Directory
	spec   RoomSpec
	closed atomic.Bool
}

func (h *handle) ID() schema.RoomID { return h.spec.ID }

func (h *handle) DisplayName() string {
	if h.spec.Name != "" {
		return h.spec.Name
	}
	return string(h.spec.ID)
}

func (h *handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.dir.open.Add(-1)
	}
	return nil
}

package core

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/roomlist/schema"
)

// UpdateKind names a room list update variant.
type UpdateKind string

const (
	KindSet       UpdateKind = "set"
	KindAppend    UpdateKind = "append"
	KindPushBack  UpdateKind = "push_back"
	KindPushFront UpdateKind = "push_front"
	KindInsert    UpdateKind = "insert"
	KindRemove    UpdateKind = "remove"
	KindReset     UpdateKind = "reset"
	KindPopBack   UpdateKind = "pop_back"
	KindPopFront  UpdateKind = "pop_front"
	KindClear     UpdateKind = "clear"
	KindTruncate  UpdateKind = "truncate"
)

// Update is one room list mutation. The set of variants is closed: every
// variant implements apply, so a new variant cannot be added without its
// list semantics.
//
// Indexes address the list as it is when the update is applied, after every
// earlier update of the same batch.
type Update interface {
	Kind() UpdateKind
	// apply consumes the update's room handles on every path, including errors.
	apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error)
	describe(includeRoomNames bool) string
	handles() []Room
}

// Set replaces the entry at Index.
type Set struct {
	Index int
	Room  Room
}

// Append adds entries at the end, in order.
type Append struct {
	Rooms []Room
}

// PushBack adds one entry at the end.
type PushBack struct {
	Room Room
}

// PushFront adds one entry at the start.
type PushFront struct {
	Room Room
}

// Insert adds an entry at Index, shifting later entries back.
type Insert struct {
	Index int
	Room  Room
}

// Remove drops the entry at Index.
type Remove struct {
	Index int
}

// Reset replaces the whole list.
type Reset struct {
	Rooms []Room
}

// PopBack drops the last entry, if any.
type PopBack struct{}

// PopFront drops the first entry, if any.
type PopFront struct{}

// Clear empties the list.
type Clear struct{}

// Truncate drops every entry from Length onward.
type Truncate struct {
	Length int
}

func (Set) Kind() UpdateKind       { return KindSet }
func (Append) Kind() UpdateKind    { return KindAppend }
func (PushBack) Kind() UpdateKind  { return KindPushBack }
func (PushFront) Kind() UpdateKind { return KindPushFront }
func (Insert) Kind() UpdateKind    { return KindInsert }
func (Remove) Kind() UpdateKind    { return KindRemove }
func (Reset) Kind() UpdateKind     { return KindReset }
func (PopBack) Kind() UpdateKind   { return KindPopBack }
func (PopFront) Kind() UpdateKind  { return KindPopFront }
func (Clear) Kind() UpdateKind     { return KindClear }
func (Truncate) Kind() UpdateKind  { return KindTruncate }

func (u Set) handles() []Room       { return []Room{u.Room} }
func (u Append) handles() []Room    { return u.Rooms }
func (u PushBack) handles() []Room  { return []Room{u.Room} }
func (u PushFront) handles() []Room { return []Room{u.Room} }
func (u Insert) handles() []Room    { return []Room{u.Room} }
func (Remove) handles() []Room      { return nil }
func (u Reset) handles() []Room     { return u.Rooms }
func (PopBack) handles() []Room     { return nil }
func (PopFront) handles() []Room    { return nil }
func (Clear) handles() []Room       { return nil }
func (Truncate) handles() []Room    { return nil }

func (u Set) describe(names bool) string {
	return fmt.Sprintf("Set #%d to %s", u.Index, describeRoom(u.Room, names))
}

func (u Append) describe(names bool) string {
	return "Append " + describeRooms(u.Rooms, names)
}

func (u PushBack) describe(names bool) string {
	return "PushBack " + describeRoom(u.Room, names)
}

func (u PushFront) describe(names bool) string {
	return "PushFront " + describeRoom(u.Room, names)
}

func (u Insert) describe(names bool) string {
	return fmt.Sprintf("Insert at #%d: %s", u.Index, describeRoom(u.Room, names))
}

func (u Remove) describe(bool) string {
	return fmt.Sprintf("Remove #%d", u.Index)
}

func (u Reset) describe(names bool) string {
	return "Reset all to " + describeRooms(u.Rooms, names)
}

func (PopBack) describe(bool) string  { return "PopBack" }
func (PopFront) describe(bool) string { return "PopFront" }
func (Clear) describe(bool) string    { return "Clear" }

func (u Truncate) describe(bool) string {
	return fmt.Sprintf("Truncate to %d items", u.Length)
}

// Describe renders an update for logs. Room display names are only included
// when includeRoomNames is set.
func Describe(update Update, includeRoomNames bool) string {
	if update == nil {
		return "<nil>"
	}
	return update.describe(includeRoomNames)
}

// DescribeBatch renders every update of a batch.
func DescribeBatch(updates []Update, includeRoomNames bool) []string {
	out := make([]string, 0, len(updates))
	for _, update := range updates {
		out = append(out, Describe(update, includeRoomNames))
	}
	return out
}

// supersedesPending reports whether a batch starting with this update makes
// every earlier, not yet applied batch irrelevant.
func supersedesPending(updates []Update) bool {
	if len(updates) == 0 {
		return false
	}
	switch updates[0].(type) {
	case Reset, *Reset, Clear, *Clear:
		return true
	default:
		return false
	}
}

func describeRoom(room Room, names bool) string {
	if room == nil {
		return "<nil>"
	}
	if names {
		return fmt.Sprintf("'%s' - %s", room.DisplayName(), room.ID())
	}
	return room.ID().String()
}

func describeRooms(rooms []Room, names bool) string {
	parts := make([]string, 0, len(rooms))
	for _, room := range rooms {
		parts = append(parts, describeRoom(room, names))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

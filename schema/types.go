package schema

import "time"

// RoomID identifies a room (conversation). Stable for the room's lifetime.
type RoomID string

// String returns the raw identifier.
func (id RoomID) String() string {
	return string(id)
}

// Membership is the local user's membership in a room.
type Membership string

const (
	// MembershipJoined indicates the user has joined the room.
	MembershipJoined Membership = "join"
	// MembershipInvited indicates a pending invite.
	MembershipInvited Membership = "invite"
	// MembershipLeft indicates the user left or was removed.
	MembershipLeft Membership = "leave"
	// MembershipKnocked indicates a knock awaiting approval.
	MembershipKnocked Membership = "knock"
)

// LatestEvent is the preview of the most recent event shown in a room list.
type LatestEvent struct {
	Sender    string
	Body      string
	Timestamp int64
}

// RoomSummary is the enriched, display-ready record for one room list entry.
// Values are compared with ==, so every field must stay comparable.
type RoomSummary struct {
	RoomID            RoomID
	Name              string
	CanonicalAlias    string
	AvatarURL         string
	Membership        Membership
	IsDirect          bool
	IsFavorite        bool
	IsMarkedUnread    bool
	UnreadMessages    int
	UnreadMentions    int
	UnreadNotifyCount int
	LatestEvent       LatestEvent
	// Revision increments each time the summary is rebuilt from a room handle.
	Revision uint64
}

// Snapshot is an immutable, published view of the room summary list.
type Snapshot struct {
	Seq         uint64
	Rooms       []RoomSummary
	PublishedAt time.Time
}

// Len reports the number of rooms in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Rooms)
}

// RoomIDs returns the room identifiers in list order.
func (s Snapshot) RoomIDs() []RoomID {
	ids := make([]RoomID, 0, len(s.Rooms))
	for _, room := range s.Rooms {
		ids = append(ids, room.RoomID)
	}
	return ids
}

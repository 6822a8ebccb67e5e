package schema

import (
	"strings"
	"unicode"
)

// ValidateRoomID ensures a room id is non-empty, has no surrounding whitespace,
// and contains only printable characters.
func ValidateRoomID(roomID RoomID) error {
	raw := string(roomID)
	if raw == "" {
		return ErrInvalidRoomID
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidRoomID
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return ErrInvalidRoomID
		}
	}
	return nil
}

// DuplicateRoomIDs returns the ids that occur more than once in rooms, mapped to
// their occurrence count. It returns nil when every id is unique.
func DuplicateRoomIDs(rooms []RoomSummary) map[RoomID]int {
	counts := make(map[RoomID]int, len(rooms))
	for _, room := range rooms {
		counts[room.RoomID]++
	}
	var dups map[RoomID]int
	for id, n := range counts {
		if n < 2 {
			continue
		}
		if dups == nil {
			dups = make(map[RoomID]int)
		}
		dups[id] = n
	}
	return dups
}

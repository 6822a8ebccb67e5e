package schema

import "time"

// BatchReport describes one applied batch of list updates.
type BatchReport struct {
	Batch   uint64
	Updates int
	Rooms   int
	Elapsed time.Duration
	// Published is false when the batch left the list unchanged.
	Published bool
}

// DuplicateReport flags room ids that occur more than once after a batch.
type DuplicateReport struct {
	Batch      uint64
	Duplicates map[RoomID]int
	// Updates describes the batch that produced the duplicates.
	Updates []string
}

// Extra returns the number of surplus entries, i.e. entries beyond the first for
// each duplicated id.
func (r DuplicateReport) Extra() int {
	extra := 0
	for _, n := range r.Duplicates {
		if n > 1 {
			extra += n - 1
		}
	}
	return extra
}

// RebuildReport describes a completed rebuild of every summary in the list.
type RebuildReport struct {
	Rooms   int
	Rebuilt int
	Missing int
	Elapsed time.Duration
}

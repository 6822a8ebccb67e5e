package persist

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

// Recorder writes published snapshots to a Store as they arrive.
type Recorder struct {
	// RunID, when set, tags every record written.
	RunID string

	store *Store
	name  string
	log   pslog.Logger
	saved uint64
	any   bool
}

// NewRecorder constructs a Recorder saving under name.
func NewRecorder(store *Store, name string, logger pslog.Logger) *Recorder {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Recorder{store: store, name: name, log: logger.With("snapshot", name)}
}

// Run saves every snapshot received on snapshots until the channel is closed
// or ctx is done. Snapshots older than the last saved one are skipped. A
// failed save is logged and the next snapshot retried.
func (r *Recorder) Run(ctx context.Context, snapshots <-chan schema.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-snapshots:
			if !ok {
				return nil
			}
			r.record(snapshot)
		}
	}
}

// Saved reports the sequence number of the last snapshot written.
func (r *Recorder) Saved() (uint64, bool) {
	return r.saved, r.any
}

func (r *Recorder) record(snapshot schema.Snapshot) {
	if r.any && snapshot.Seq <= r.saved {
		return
	}
	record := NewSnapshotRecord(snapshot)
	record.RunID = r.RunID
	if err := r.store.SaveRecord(r.name, record); err != nil {
		r.log.Warn("snapshot record failed", "seq", snapshot.Seq, "err", err)
		return
	}
	r.saved = snapshot.Seq
	r.any = true
}

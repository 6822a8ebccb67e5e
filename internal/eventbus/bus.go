package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

// Bus fans out published snapshots to subscribers. It remembers the most recent
// snapshot so late subscribers start from the current state.
//
// A subscriber that falls behind loses intermediate snapshots, never the latest
// one: when its channel is full the oldest buffered snapshot is discarded.
type Bus struct {
	mu      sync.Mutex
	subs    map[chan schema.Snapshot]struct{}
	last    schema.Snapshot
	hasLast bool
	log     pslog.Logger
	depth   int
}

// New constructs a Bus with the given per-subscriber channel depth.
func New(logger pslog.Logger, depth int) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if depth <= 0 {
		depth = schema.DefaultSubscriberDepth
	}
	return &Bus{
		subs:  make(map[chan schema.Snapshot]struct{}),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel. When a
// snapshot has been published already, it is the first value on the channel.
func (b *Bus) Subscribe() (<-chan schema.Snapshot, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.Snapshot, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	if b.hasLast {
		ch <- b.last
	}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			remaining := len(b.subs)
			b.mu.Unlock()
			b.log.Debug("eventbus unsubscribe", "subs", remaining)
		})
	}
}

// Latest returns the most recently published snapshot.
func (b *Bus) Latest() (schema.Snapshot, bool) {
	if b == nil {
		return schema.Snapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Subscribers reports the number of active subscribers.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish records the snapshot as the latest and delivers it to every subscriber.
// It never blocks.
func (b *Bus) Publish(snapshot schema.Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = snapshot
	b.hasLast = true
	dropped := 0
	for sub := range b.subs {
		if deliverLatest(sub, snapshot) {
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Trace("eventbus dropped stale snapshots", "seq", snapshot.Seq, "count", dropped)
	}
}

// deliverLatest sends snapshot, evicting the oldest buffered value if the channel
// is full. Callers hold b.mu, which makes Publish the only sender.
func deliverLatest(sub chan schema.Snapshot, snapshot schema.Snapshot) bool {
	select {
	case sub <- snapshot:
		return false
	default:
	}
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- snapshot:
	default:
	}
	return true
}

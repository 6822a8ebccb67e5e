package core

import (
	"context"
	"slices"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/internal/eventbus"
	"pkt.systems/roomlist/schema"
)

// Transform edits a private copy of the room list and returns the list to
// publish. Returning an error discards the copy.
type Transform func(ctx context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error)

// Publisher owns the room list. Every change goes through Mutate, which runs
// one transform at a time and broadcasts the result to subscribers.
type Publisher struct {
	// lock is the list mutation lock: a one-slot semaphore so that waiting
	// for it can be abandoned when a context is cancelled.
	lock chan struct{}
	// last is only read or written while lock is held.
	last schema.Snapshot
	bus  *eventbus.Bus
	log  pslog.Logger
	now  func() time.Time
}

// NewPublisher constructs a Publisher holding an empty list. The empty list is
// published immediately so subscribers always start from a snapshot.
func NewPublisher(logger pslog.Logger, subscriberDepth int) *Publisher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	p := &Publisher{
		lock: make(chan struct{}, 1),
		bus:  eventbus.New(logger, subscriberDepth),
		log:  logger,
		now:  time.Now,
	}
	p.last = schema.Snapshot{Rooms: []schema.RoomSummary{}, PublishedAt: p.now()}
	p.bus.Publish(p.last)
	return p
}

// Mutate waits for the mutation lock, applies transform to a copy of the
// current list, and publishes the result. ctx only bounds the wait for the
// lock; once acquired, transform receives ctx unchanged.
//
// The returned bool is false when the transform failed or left the list
// unchanged, in which case nothing is published.
func (p *Publisher) Mutate(ctx context.Context, transform Transform) (schema.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return schema.Snapshot{}, false, err
	}
	select {
	case p.lock <- struct{}{}:
	case <-ctx.Done():
		return schema.Snapshot{}, false, ctx.Err()
	}
	defer func() { <-p.lock }()
	// select picks randomly when both cases are ready.
	if err := ctx.Err(); err != nil {
		return schema.Snapshot{}, false, err
	}

	current := p.last
	working := slices.Clone(current.Rooms)
	next, err := transform(ctx, working)
	if err != nil {
		return current, false, err
	}
	if next == nil {
		next = []schema.RoomSummary{}
	}
	if slices.Equal(next, current.Rooms) {
		p.log.Trace("roomlist snapshot unchanged", "seq", current.Seq, "rooms", len(next))
		return current, false, nil
	}
	snapshot := schema.Snapshot{
		Seq:         current.Seq + 1,
		Rooms:       next,
		PublishedAt: p.now(),
	}
	p.last = snapshot
	p.bus.Publish(snapshot)
	p.log.Trace("roomlist snapshot published", "seq", snapshot.Seq, "rooms", len(next))
	return snapshot, true, nil
}

// Current returns the most recently published snapshot.
func (p *Publisher) Current() schema.Snapshot {
	snapshot, _ := p.bus.Latest()
	return snapshot
}

// Subscribe returns a channel of published snapshots, starting with the
// current one, and a cancel func that closes it.
func (p *Publisher) Subscribe() (<-chan schema.Snapshot, func()) {
	return p.bus.Subscribe()
}

// Subscribers reports the number of open subscriptions.
func (p *Publisher) Subscribers() int {
	return p.bus.Subscribers()
}

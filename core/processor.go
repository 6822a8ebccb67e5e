package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/internal/logx"
	"pkt.systems/roomlist/schema"
)

// Processor turns batches of room list updates from the sync service into
// published room summary snapshots.
//
// Batches are applied one at a time in the order they were posted. A batch
// that starts with Reset or Clear cancels every batch still waiting to run.
//
// Lock order: queueMu guards the pending registry and is always released
// before the publisher's mutation lock is awaited. The two are never held
// together, by any goroutine.
type Processor struct {
	cfg       schema.ProcessorConfig
	engine    *engine
	lookup    RoomLookup
	publisher *Publisher
	sink      DiagnosticSink
	logger    pslog.Logger

	queueMu   sync.Mutex
	pending   []*workUnit
	nextBatch uint64
	draining  bool
	idle      chan struct{}
	closed    bool

	stats processorCounters
}

// workUnit is the cancellable application of one posted batch.
type workUnit struct {
	batch   uint64
	updates []Update
	ctx     context.Context
	cancel  context.CancelFunc
	// started is set under queueMu once the drain loop picks the unit up.
	started bool
}

// ProcessorStats is a point-in-time copy of processor counters.
type ProcessorStats struct {
	Posted      uint64
	Applied     uint64
	Unchanged   uint64
	Cancelled   uint64
	Failed      uint64
	Duplicates  uint64
	Rebuilds    uint64
	Pending     int
	// Subscribers counts open snapshot subscriptions.
	Subscribers int
}

type processorCounters struct {
	posted     atomic.Uint64
	applied    atomic.Uint64
	unchanged  atomic.Uint64
	cancelled  atomic.Uint64
	failed     atomic.Uint64
	duplicates atomic.Uint64
	rebuilds   atomic.Uint64
}

// NewProcessor constructs a Processor with an empty room list.
func NewProcessor(cfg schema.ProcessorConfig, deps ProcessorDeps) (*Processor, error) {
	if deps.Builder == nil {
		return nil, errors.New("summary builder is required")
	}
	cfg = schema.NormalizeProcessorConfig(cfg)
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	sink := MultiSink(logSink{log: logger}, deps.Diagnostics)
	idle := make(chan struct{})
	close(idle)
	return &Processor{
		cfg: cfg,
		engine: &engine{
			builder:     deps.Builder,
			concurrency: cfg.BuildConcurrency,
			log:         logger,
		},
		lookup:    deps.Lookup,
		publisher: NewPublisher(logger, cfg.SubscriberDepth),
		sink:      sink,
		logger:    logger,
		idle:      idle,
	}, nil
}

// PostUpdate queues a batch of updates and returns without waiting for it to
// be applied. Updates within the batch are applied in slice order.
func (p *Processor) PostUpdate(ctx context.Context, updates []Update) error {
	if ctx == nil {
		releaseBatch(p.logger, updates)
		return errors.New("missing context")
	}
	log := pslog.Ctx(ctx)
	if len(updates) == 0 {
		log.Trace("roomlist empty batch ignored")
		return nil
	}
	for i, update := range updates {
		if update == nil {
			releaseBatch(p.logger, updates)
			return fmt.Errorf("%w: update %d is nil", schema.ErrInvalidUpdate, i)
		}
	}

	p.queueMu.Lock()
	if p.closed {
		p.queueMu.Unlock()
		releaseBatch(p.logger, updates)
		return schema.ErrClosed
	}
	var superseded []*workUnit
	if supersedesPending(updates) {
		superseded = p.cancelPendingLocked()
	}
	p.nextBatch++
	unit := p.newUnitLocked(ctx, p.nextBatch, updates)
	p.pending = append(p.pending, unit)
	queued := len(p.pending)
	if !p.draining {
		p.draining = true
		p.idle = make(chan struct{})
		go p.drain()
	}
	p.queueMu.Unlock()

	p.stats.posted.Add(1)
	p.reportCancelled(superseded)
	log.Debug("roomlist batch queued", "batch", unit.batch, "updates", len(updates), "first", updates[0].Kind(), "pending", queued, "superseded", len(superseded))
	return nil
}

// RebuildRoomSummaries rebuilds every summary in the list from a freshly
// resolved room handle. Rooms the lookup no longer knows keep their current
// summary; removal only ever happens through updates.
func (p *Processor) RebuildRoomSummaries(ctx context.Context) error {
	if p.lookup == nil {
		return errors.New("room lookup is required for rebuild")
	}
	start := time.Now()
	var report schema.RebuildReport
	_, _, err := p.publisher.Mutate(ctx, func(ctx context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		report = schema.RebuildReport{Rooms: len(rooms)}
		for i, summary := range rooms {
			roomCtx := logx.ContextWithRoomLogger(ctx, logx.WithRoom(ctx, summary.RoomID), summary.RoomID)
			room, err := p.lookup.RoomOrNil(roomCtx, summary.RoomID)
			if err != nil {
				return nil, fmt.Errorf("resolve room %s: %w", summary.RoomID, err)
			}
			if room == nil {
				report.Missing++
				logx.WithRoom(roomCtx, summary.RoomID).Trace("roomlist rebuild kept stale summary")
				continue
			}
			rebuilt, err := p.engine.build(roomCtx, room)
			if err != nil {
				return nil, err
			}
			rooms[i] = rebuilt
			report.Rebuilt++
		}
		report.Elapsed = time.Since(start)
		p.sink.Rebuilt(ctx, report)
		return rooms, nil
	})
	if err != nil {
		p.logger.Warn("roomlist rebuild failed", "err", err)
		return err
	}
	p.stats.rebuilds.Add(1)
	return nil
}

// Subscribe returns a channel of published snapshots, starting with the
// current one. Slow subscribers skip intermediate snapshots but always
// receive the latest.
func (p *Processor) Subscribe() (<-chan schema.Snapshot, func()) {
	return p.publisher.Subscribe()
}

// Snapshot returns the most recently published snapshot.
func (p *Processor) Snapshot() schema.Snapshot {
	return p.publisher.Current()
}

// Flush blocks until every queued batch has been applied or cancelled.
func (p *Processor) Flush(ctx context.Context) error {
	p.queueMu.Lock()
	idle := p.idle
	p.queueMu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels queued batches and rejects further updates. A batch that is
// already being applied runs to completion.
func (p *Processor) Close() error {
	p.queueMu.Lock()
	if p.closed {
		p.queueMu.Unlock()
		return nil
	}
	p.closed = true
	cancelled := p.cancelPendingLocked()
	p.queueMu.Unlock()
	p.reportCancelled(cancelled)
	p.logger.Debug("roomlist processor closed", "cancelled", len(cancelled))
	return nil
}

// Stats returns a copy of the processor counters.
func (p *Processor) Stats() ProcessorStats {
	p.queueMu.Lock()
	pending := len(p.pending)
	p.queueMu.Unlock()
	return ProcessorStats{
		Posted:      p.stats.posted.Load(),
		Applied:     p.stats.applied.Load(),
		Unchanged:   p.stats.unchanged.Load(),
		Cancelled:   p.stats.cancelled.Load(),
		Failed:      p.stats.failed.Load(),
		Duplicates:  p.stats.duplicates.Load(),
		Rebuilds:    p.stats.rebuilds.Load(),
		Pending:     pending,
		Subscribers: p.publisher.Subscribers(),
	}
}

// newUnitLocked derives the unit context from the background, not from the
// poster's context: a batch outlives the PostUpdate call. The poster's logger
// and log markers are carried over.
func (p *Processor) newUnitLocked(postCtx context.Context, batch uint64, updates []Update) *workUnit {
	log := logx.CtxOr(postCtx, p.logger).With("batch", batch)
	base := logx.CopyContextFields(context.Background(), postCtx)
	ctx, cancel := context.WithCancel(logx.ContextWithBatchLogger(base, log, batch))
	return &workUnit{
		batch:   batch,
		updates: updates,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// cancelPendingLocked cancels and unregisters every pending unit. It returns
// the units that never started; a started unit finds out through its context.
func (p *Processor) cancelPendingLocked() []*workUnit {
	var notStarted []*workUnit
	for _, unit := range p.pending {
		unit.cancel()
		if !unit.started {
			notStarted = append(notStarted, unit)
		}
	}
	p.pending = nil
	return notStarted
}

func (p *Processor) reportCancelled(units []*workUnit) {
	for _, unit := range units {
		releaseBatch(logx.Ctx(unit.ctx), unit.updates)
		p.stats.cancelled.Add(1)
		p.sink.BatchCancelled(unit.ctx, unit.batch)
	}
}

// drain runs pending units in order until none are left. At most one drain
// goroutine runs per processor.
func (p *Processor) drain() {
	for {
		p.queueMu.Lock()
		unit := p.nextUnitLocked()
		if unit == nil {
			p.draining = false
			close(p.idle)
			p.queueMu.Unlock()
			return
		}
		unit.started = true
		p.queueMu.Unlock()

		p.run(unit)

		p.queueMu.Lock()
		p.removeLocked(unit)
		p.queueMu.Unlock()
		unit.cancel()
	}
}

func (p *Processor) nextUnitLocked() *workUnit {
	for _, unit := range p.pending {
		if !unit.started {
			return unit
		}
	}
	return nil
}

// removeLocked drops unit from the registry by identity. Completion order
// cannot remove a different unit's handle.
func (p *Processor) removeLocked(unit *workUnit) {
	for i, candidate := range p.pending {
		if candidate == unit {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// run applies one unit under the mutation lock. Cancellation only prevents the
// lock from being acquired; once inside, the batch runs to completion.
func (p *Processor) run(unit *workUnit) {
	log := logx.WithBatch(unit.ctx, unit.batch)
	start := time.Now()
	entered := false
	snapshot, published, err := p.publisher.Mutate(unit.ctx, func(ctx context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		entered = true
		ctx = context.WithoutCancel(ctx)
		for i, update := range unit.updates {
			if p.cfg.TraceUpdates {
				log.Trace("roomlist apply update", "index", i, "update", Describe(update, p.cfg.LogRoomNames))
			}
			next, err := p.engine.apply(ctx, rooms, update)
			if err != nil {
				releaseBatch(log, unit.updates[i+1:])
				return nil, fmt.Errorf("apply update %d (%s): %w", i, Describe(update, false), err)
			}
			rooms = next
		}
		if dups := schema.DuplicateRoomIDs(rooms); dups != nil {
			p.stats.duplicates.Add(1)
			p.sink.DuplicateRooms(ctx, schema.DuplicateReport{
				Batch:      unit.batch,
				Duplicates: dups,
				Updates:    DescribeBatch(unit.updates, p.cfg.LogRoomNames),
			})
		}
		return rooms, nil
	})
	switch {
	case err != nil && !entered:
		releaseBatch(log, unit.updates)
		p.stats.cancelled.Add(1)
		p.sink.BatchCancelled(unit.ctx, unit.batch)
	case err != nil:
		p.stats.failed.Add(1)
		p.sink.BatchFailed(unit.ctx, unit.batch, err)
	default:
		if published {
			p.stats.applied.Add(1)
		} else {
			p.stats.unchanged.Add(1)
		}
		p.sink.BatchApplied(unit.ctx, schema.BatchReport{
			Batch:     unit.batch,
			Updates:   len(unit.updates),
			Rooms:     snapshot.Len(),
			Elapsed:   time.Since(start),
			Published: published,
		})
	}
}

func releaseBatch(log pslog.Logger, updates []Update) {
	for _, update := range updates {
		if update == nil {
			continue
		}
		releaseRooms(log, update.handles()...)
	}
}

// ReleaseUpdates closes every room handle carried by updates, logging close
// failures through the context logger. Use it for batches that are never
// posted; PostUpdate takes ownership of the handles of every batch passed to it.
func ReleaseUpdates(ctx context.Context, updates []Update) {
	releaseBatch(pslog.Ctx(ctx), updates)
}

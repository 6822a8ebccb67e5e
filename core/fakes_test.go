package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/roomlist/schema"
)

type fakeRoom struct {
	id     schema.RoomID
	name   string
	closed atomic.Int32
}

func newFakeRoom(id schema.RoomID) *fakeRoom {
	return &fakeRoom{id: id, name: "Room " + string(id)}
}

func (r *fakeRoom) ID() schema.RoomID   { return r.id }
func (r *fakeRoom) DisplayName() string { return r.name }
func (r *fakeRoom) Close() error {
	r.closed.Add(1)
	return nil
}

// fakeDirectory is both the room lookup and the summary builder.
type fakeDirectory struct {
	mu       sync.Mutex
	live     map[schema.RoomID]bool
	builds   map[schema.RoomID]int
	fail     map[schema.RoomID]error
	gates    map[schema.RoomID]chan struct{}
	entered  map[schema.RoomID]chan struct{}
	revision uint64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		live:    make(map[schema.RoomID]bool),
		builds:  make(map[schema.RoomID]int),
		fail:    make(map[schema.RoomID]error),
		gates:   make(map[schema.RoomID]chan struct{}),
		entered: make(map[schema.RoomID]chan struct{}),
	}
}

// gate makes builds of id block until the returned func is called. The
// second returned channel is closed once a build of id has started.
func (d *fakeDirectory) gate(id schema.RoomID) (func(), <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate := make(chan struct{})
	entered := make(chan struct{})
	d.gates[id] = gate
	d.entered[id] = entered
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }, entered
}

func (d *fakeDirectory) setLive(id schema.RoomID, live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[id] = live
}

func (d *fakeDirectory) failBuild(id schema.RoomID, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[id] = err
}

func (d *fakeDirectory) buildCount(id schema.RoomID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.builds[id]
}

func (d *fakeDirectory) RoomOrNil(_ context.Context, id schema.RoomID) (Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live[id] {
		return nil, nil
	}
	return newFakeRoom(id), nil
}

func (d *fakeDirectory) Build(ctx context.Context, room Room) (schema.RoomSummary, error) {
	id := room.ID()
	d.mu.Lock()
	gate := d.gates[id]
	entered := d.entered[id]
	delete(d.entered, id)
	d.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return schema.RoomSummary{}, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[id]; err != nil {
		return schema.RoomSummary{}, err
	}
	d.builds[id]++
	d.revision++
	return schema.RoomSummary{
		RoomID:   id,
		Name:     room.DisplayName(),
		Revision: d.revision,
	}, nil
}

type recordingSink struct {
	mu         sync.Mutex
	applied    []schema.BatchReport
	cancelled  []uint64
	failed     []error
	duplicates []schema.DuplicateReport
	rebuilds   []schema.RebuildReport
}

func (s *recordingSink) BatchApplied(_ context.Context, report schema.BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, report)
}

func (s *recordingSink) BatchCancelled(_ context.Context, batch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, batch)
}

func (s *recordingSink) BatchFailed(_ context.Context, _ uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func (s *recordingSink) DuplicateRooms(_ context.Context, report schema.DuplicateReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates = append(s.duplicates, report)
}

func (s *recordingSink) Rebuilt(_ context.Context, report schema.RebuildReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilds = append(s.rebuilds, report)
}

type sinkRecord struct {
	applied    []schema.BatchReport
	cancelled  []uint64
	failed     []error
	duplicates []schema.DuplicateReport
	rebuilds   []schema.RebuildReport
}

func (s *recordingSink) snapshot() sinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sinkRecord{
		applied:    append([]schema.BatchReport(nil), s.applied...),
		cancelled:  append([]uint64(nil), s.cancelled...),
		failed:     append([]error(nil), s.failed...),
		duplicates: append([]schema.DuplicateReport(nil), s.duplicates...),
		rebuilds:   append([]schema.RebuildReport(nil), s.rebuilds...),
	}
}

var errBuild = errors.New("build failed")

func newTestProcessor(t *testing.T, cfg schema.ProcessorConfig) (*Processor, *fakeDirectory, *recordingSink) {
	t.Helper()
	dir := newFakeDirectory()
	sink := &recordingSink{}
	proc, err := NewProcessor(cfg, ProcessorDeps{
		Builder:     dir,
		Lookup:      dir,
		Diagnostics: sink,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	t.Cleanup(func() { _ = proc.Close() })
	return proc, dir, sink
}

func post(t *testing.T, proc *Processor, updates ...Update) {
	t.Helper()
	if err := proc.PostUpdate(context.Background(), updates); err != nil {
		t.Fatalf("post update: %v", err)
	}
}

func flush(t *testing.T, proc *Processor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := proc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func rooms(ids ...schema.RoomID) []Room {
	out := make([]Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, newFakeRoom(id))
	}
	return out
}

func ids(list []schema.RoomSummary) []schema.RoomID {
	out := make([]schema.RoomID, 0, len(list))
	for _, room := range list {
		out = append(out, room.RoomID)
	}
	return out
}

func equalIDs(a, b []schema.RoomID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

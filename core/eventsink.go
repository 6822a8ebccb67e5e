package core

import (
	"context"
	"sort"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

// DiagnosticSink receives processor outcomes. Implementations must not block;
// they are called while the list mutation lock is held.
type DiagnosticSink interface {
	BatchApplied(ctx context.Context, report schema.BatchReport)
	BatchCancelled(ctx context.Context, batch uint64)
	BatchFailed(ctx context.Context, batch uint64, err error)
	DuplicateRooms(ctx context.Context, report schema.DuplicateReport)
	Rebuilt(ctx context.Context, report schema.RebuildReport)
}

// MultiSink fans diagnostics out to every non-nil sink.
func MultiSink(sinks ...DiagnosticSink) DiagnosticSink {
	out := make(sinkFanout, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

type sinkFanout []DiagnosticSink

func (f sinkFanout) BatchApplied(ctx context.Context, report schema.BatchReport) {
	for _, sink := range f {
		sink.BatchApplied(ctx, report)
	}
}

func (f sinkFanout) BatchCancelled(ctx context.Context, batch uint64) {
	for _, sink := range f {
		sink.BatchCancelled(ctx, batch)
	}
}

func (f sinkFanout) BatchFailed(ctx context.Context, batch uint64, err error) {
	for _, sink := range f {
		sink.BatchFailed(ctx, batch, err)
	}
}

func (f sinkFanout) DuplicateRooms(ctx context.Context, report schema.DuplicateReport) {
	for _, sink := range f {
		sink.DuplicateRooms(ctx, report)
	}
}

func (f sinkFanout) Rebuilt(ctx context.Context, report schema.RebuildReport) {
	for _, sink := range f {
		sink.Rebuilt(ctx, report)
	}
}

// logSink writes diagnostics to a pslog logger. It is always installed.
type logSink struct {
	log pslog.Logger
}

func (s logSink) BatchApplied(_ context.Context, report schema.BatchReport) {
	s.log.Debug("roomlist batch applied",
		"batch", report.Batch,
		"updates", report.Updates,
		"rooms", report.Rooms,
		"elapsed", report.Elapsed,
		"published", report.Published,
	)
}

func (s logSink) BatchCancelled(_ context.Context, batch uint64) {
	s.log.Debug("roomlist batch cancelled", "batch", batch)
}

func (s logSink) BatchFailed(_ context.Context, batch uint64, err error) {
	s.log.Warn("roomlist batch failed", "batch", batch, "err", err)
}

func (s logSink) DuplicateRooms(_ context.Context, report schema.DuplicateReport) {
	ids := make([]string, 0, len(report.Duplicates))
	for id := range report.Duplicates {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	s.log.Error("roomlist duplicate room ids after update",
		"batch", report.Batch,
		"rooms", ids,
		"extra", report.Extra(),
		"updates", report.Updates,
	)
}

func (s logSink) Rebuilt(_ context.Context, report schema.RebuildReport) {
	s.log.Debug("roomlist rebuild done",
		"rooms", report.Rooms,
		"rebuilt", report.Rebuilt,
		"missing", report.Missing,
		"elapsed", report.Elapsed,
	)
}

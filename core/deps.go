package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

// Room is a raw room handle supplied by the sync service. Handles are borrowed
// only while a summary is built from them and are closed afterwards.
type Room interface {
	ID() schema.RoomID
	DisplayName() string
	Close() error
}

// RoomLookup resolves a room id to a live room handle. A nil Room with a nil
// error means the room is currently unknown.
type RoomLookup interface {
	RoomOrNil(ctx context.Context, roomID schema.RoomID) (Room, error)
}

// SummaryBuilder derives a display summary from a room handle. It may block on I/O.
type SummaryBuilder interface {
	Build(ctx context.Context, room Room) (schema.RoomSummary, error)
}

// SummaryBuilderFunc adapts a function to SummaryBuilder.
type SummaryBuilderFunc func(ctx context.Context, room Room) (schema.RoomSummary, error)

// Build calls f.
func (f SummaryBuilderFunc) Build(ctx context.Context, room Room) (schema.RoomSummary, error) {
	return f(ctx, room)
}

// ProcessorDeps captures the collaborators of a Processor. Builder is required.
type ProcessorDeps struct {
	Builder     SummaryBuilder
	Lookup      RoomLookup
	Diagnostics DiagnosticSink
	Logger      pslog.Logger
}

package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

type contextKey int

const (
	roomKey contextKey = iota
	batchKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// CtxOr returns the logger bound to ctx, or fallback when ctx carries none.
func CtxOr(ctx context.Context, fallback pslog.Logger) pslog.Logger {
	log := pslog.Ctx(ctx)
	if fallback != nil && log == pslog.Ctx(context.Background()) {
		return fallback
	}
	return log
}

// WithRoom annotates the logger with the room id if present.
func WithRoom(ctx context.Context, roomID schema.RoomID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if roomID != "" {
		if current, ok := ctx.Value(roomKey).(schema.RoomID); ok && current == roomID {
			return log
		}
		log = log.With("room", roomID)
	}
	return log
}

// WithBatch annotates the logger with the batch sequence number if present.
func WithBatch(ctx context.Context, batch uint64) pslog.Logger {
	log := pslog.Ctx(ctx)
	if batch != 0 {
		if current, ok := ctx.Value(batchKey).(uint64); ok && current == batch {
			return log
		}
		log = log.With("batch", batch)
	}
	return log
}

// ContextWithRoom stores the room marker on the context for log de-duplication.
func ContextWithRoom(ctx context.Context, roomID schema.RoomID) context.Context {
	if ctx == nil || roomID == "" {
		return ctx
	}
	return context.WithValue(ctx, roomKey, roomID)
}

// ContextWithBatch stores the batch marker on the context for log de-duplication.
func ContextWithBatch(ctx context.Context, batch uint64) context.Context {
	if ctx == nil || batch == 0 {
		return ctx
	}
	return context.WithValue(ctx, batchKey, batch)
}

// ContextWithBatchLogger attaches the logger and batch marker to the context.
func ContextWithBatchLogger(ctx context.Context, log pslog.Logger, batch uint64) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithBatch(ctx, batch)
}

// ContextWithRoomLogger attaches the logger and room marker to the context.
func ContextWithRoomLogger(ctx context.Context, log pslog.Logger, roomID schema.RoomID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithRoom(ctx, roomID)
}

// CopyContextFields copies room/batch markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if room, ok := src.Value(roomKey).(schema.RoomID); ok && room != "" {
		dst = ContextWithRoom(dst, room)
	}
	if batch, ok := src.Value(batchKey).(uint64); ok && batch != 0 {
		dst = ContextWithBatch(dst, batch)
	}
	return dst
}

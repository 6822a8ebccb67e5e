package core

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/internal/logx"
	"pkt.systems/roomlist/schema"
)

// engine applies list updates to a private working copy. It holds no list state.
type engine struct {
	builder     SummaryBuilder
	concurrency int
	log         pslog.Logger
}

// apply runs one update against rooms and returns the resulting list. The
// input slice may be modified.
func (e *engine) apply(ctx context.Context, rooms []schema.RoomSummary, update Update) ([]schema.RoomSummary, error) {
	if update == nil {
		return rooms, fmt.Errorf("%w: nil update", schema.ErrInvalidUpdate)
	}
	return update.apply(ctx, e, rooms)
}

// build borrows room for the duration of one summary build and always
// releases it.
func (e *engine) build(ctx context.Context, room Room) (schema.RoomSummary, error) {
	if room == nil {
		return schema.RoomSummary{}, fmt.Errorf("%w: nil room handle", schema.ErrInvalidUpdate)
	}
	defer e.release(room)
	if err := ctx.Err(); err != nil {
		return schema.RoomSummary{}, err
	}
	id := room.ID()
	summary, err := e.builder.Build(logx.ContextWithRoomLogger(ctx, logx.WithRoom(ctx, id), id), room)
	if err != nil {
		return schema.RoomSummary{}, fmt.Errorf("build summary for %s: %w", room.ID(), err)
	}
	if summary.RoomID == "" {
		summary.RoomID = room.ID()
	}
	return summary, nil
}

// buildAll builds summaries for rooms, preserving input order. Builds run in
// parallel up to the configured concurrency; every handle is released even
// when an earlier build fails.
func (e *engine) buildAll(ctx context.Context, rooms []Room) ([]schema.RoomSummary, error) {
	if len(rooms) == 0 {
		return nil, nil
	}
	out := make([]schema.RoomSummary, len(rooms))
	if e.concurrency <= 1 || len(rooms) == 1 {
		for i, room := range rooms {
			summary, err := e.build(ctx, room)
			if err != nil {
				e.release(rooms[i+1:]...)
				return nil, err
			}
			out[i] = summary
		}
		return out, nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for i, room := range rooms {
		group.Go(func() error {
			summary, err := e.build(groupCtx, room)
			if err != nil {
				return err
			}
			out[i] = summary
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *engine) release(rooms ...Room) {
	releaseRooms(e.log, rooms...)
}

func releaseRooms(log pslog.Logger, rooms ...Room) {
	for _, room := range rooms {
		if room == nil {
			continue
		}
		if err := room.Close(); err != nil {
			log.Debug("roomlist room handle close failed", "room", room.ID(), "err", err)
		}
	}
}

func indexError(op string, index, length int) error {
	return fmt.Errorf("%w: %s index %d with length %d", schema.ErrIndexOutOfRange, op, index, length)
}

func (u Set) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if u.Index < 0 || u.Index >= len(rooms) {
		e.release(u.Room)
		return rooms, indexError("set", u.Index, len(rooms))
	}
	summary, err := e.build(ctx, u.Room)
	if err != nil {
		return rooms, err
	}
	rooms[u.Index] = summary
	return rooms, nil
}

func (u Append) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	summaries, err := e.buildAll(ctx, u.Rooms)
	if err != nil {
		return rooms, err
	}
	return append(rooms, summaries...), nil
}

func (u PushBack) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	summary, err := e.build(ctx, u.Room)
	if err != nil {
		return rooms, err
	}
	return append(rooms, summary), nil
}

func (u PushFront) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	summary, err := e.build(ctx, u.Room)
	if err != nil {
		return rooms, err
	}
	return slices.Insert(rooms, 0, summary), nil
}

func (u Insert) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if u.Index < 0 || u.Index > len(rooms) {
		e.release(u.Room)
		return rooms, indexError("insert", u.Index, len(rooms))
	}
	summary, err := e.build(ctx, u.Room)
	if err != nil {
		return rooms, err
	}
	return slices.Insert(rooms, u.Index, summary), nil
}

func (u Remove) apply(_ context.Context, _ *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if u.Index < 0 || u.Index >= len(rooms) {
		return rooms, indexError("remove", u.Index, len(rooms))
	}
	return slices.Delete(rooms, u.Index, u.Index+1), nil
}

func (u Reset) apply(ctx context.Context, e *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	summaries, err := e.buildAll(ctx, u.Rooms)
	if err != nil {
		return rooms, err
	}
	return append(rooms[:0], summaries...), nil
}

func (PopBack) apply(_ context.Context, _ *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if len(rooms) == 0 {
		return rooms, nil
	}
	return rooms[:len(rooms)-1], nil
}

func (PopFront) apply(_ context.Context, _ *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if len(rooms) == 0 {
		return rooms, nil
	}
	return slices.Delete(rooms, 0, 1), nil
}

func (Clear) apply(_ context.Context, _ *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	return rooms[:0], nil
}

func (u Truncate) apply(_ context.Context, _ *engine, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
	if u.Length < 0 || u.Length > len(rooms) {
		return rooms, indexError("truncate", u.Length, len(rooms))
	}
	return rooms[:u.Length], nil
}

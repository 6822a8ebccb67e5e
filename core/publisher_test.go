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

func TestPublisherStartsWithEmptySnapshot(t *testing.T) {
	pub := NewPublisher(nil, 4)
	ch, cancel := pub.Subscribe()
	defer cancel()
	select {
	case got := <-ch:
		if got.Seq != 0 || got.Len() != 0 {
			t.Fatalf("expected empty initial snapshot, got %+v", got)
		}
	default:
		t.Fatalf("expected initial snapshot")
	}
}

func TestPublisherMutatePublishes(t *testing.T) {
	pub := NewPublisher(nil, 4)
	snapshot, published, err := pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		return append(rooms, schema.RoomSummary{RoomID: "a"}), nil
	})
	if err != nil || !published {
		t.Fatalf("expected publish, got published=%v err=%v", published, err)
	}
	if snapshot.Seq != 1 || snapshot.Len() != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if got := pub.Current(); got.Seq != 1 {
		t.Fatalf("expected current seq 1, got %d", got.Seq)
	}
}

func TestPublisherDiscardsFailedTransform(t *testing.T) {
	pub := NewPublisher(nil, 4)
	_, _, _ = pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		return append(rooms, schema.RoomSummary{RoomID: "a"}), nil
	})
	boom := errors.New("boom")
	_, published, err := pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		rooms[0].Name = "mutated"
		return nil, boom
	})
	if !errors.Is(err, boom) || published {
		t.Fatalf("expected failure without publish, got published=%v err=%v", published, err)
	}
	current := pub.Current()
	if current.Seq != 1 || current.Rooms[0].Name != "" {
		t.Fatalf("failed transform leaked into snapshot: %+v", current)
	}
}

func TestPublisherSkipsUnchangedList(t *testing.T) {
	pub := NewPublisher(nil, 4)
	_, published, err := pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		return rooms, nil
	})
	if err != nil || published {
		t.Fatalf("expected no publish for unchanged list, got published=%v err=%v", published, err)
	}
	if got := pub.Current().Seq; got != 0 {
		t.Fatalf("expected seq 0, got %d", got)
	}
}

func TestPublisherSerializesTransforms(t *testing.T) {
	pub := NewPublisher(nil, 64)
	var active atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
				if active.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return append(rooms, schema.RoomSummary{RoomID: schema.RoomID(string(rune('a' + i)))}), nil
			})
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Fatalf("transforms ran concurrently")
	}
	current := pub.Current()
	if current.Len() != 16 || current.Seq != 16 {
		t.Fatalf("expected 16 rooms at seq 16, got %d at %d", current.Len(), current.Seq)
	}
}

func TestPublisherMutateHonorsContextWhileWaiting(t *testing.T) {
	pub := NewPublisher(nil, 4)
	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_, _, _ = pub.Mutate(context.Background(), func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
			close(entered)
			<-hold
			return rooms, nil
		})
	}()
	waitClosed(t, entered, "first transform")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	_, _, err := pub.Mutate(ctx, func(_ context.Context, rooms []schema.RoomSummary) ([]schema.RoomSummary, error) {
		ran = true
		return rooms, nil
	})
	close(hold)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if ran {
		t.Fatalf("transform must not run after the wait was abandoned")
	}
}

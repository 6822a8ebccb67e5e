package persist

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pkt.systems/roomlist/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("roomlist")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing snapshot")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot := schema.Snapshot{
		Seq:         7,
		PublishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Rooms: []schema.RoomSummary{
			{
				RoomID:            "!general:example.org",
				Name:              "General",
				Membership:        schema.MembershipJoined,
				IsFavorite:        true,
				UnreadMessages:    3,
				UnreadNotifyCount: 3,
				LatestEvent:       schema.LatestEvent{Sender: "@alice", Body: "hi", Timestamp: 42},
				Revision:          9,
			},
			{RoomID: "!dm:example.org", IsDirect: true, Membership: schema.MembershipInvited},
		},
	}
	if err := store.Save("roomlist", snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("roomlist")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to exist")
	}
	if !reflect.DeepEqual(got, snapshot) {
		t.Fatalf("snapshot mismatch:\nwant %+v\ngot  %+v", snapshot, got)
	}
}

func TestStoreWritesPrivateFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("roomlist", schema.Snapshot{Seq: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "roomlist.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestStoreRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(store.Path("roomlist"), []byte(`{"version":99,"seq":1}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load("roomlist"); err == nil || !strings.Contains(err.Error(), "version 99") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestStorePathSanitizesName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if got := store.Path("../evil/name"); got != filepath.Join(dir, ".._evil_name.json") {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := store.Path(""); got != filepath.Join(dir, "roomlist.json") {
		t.Fatalf("unexpected default path: %s", got)
	}
}

func TestNewStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestRecorderSavesLatestSnapshot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	rec := NewRecorder(store, "roomlist", nil)
	rec.RunID = "run-1"
	ch := make(chan schema.Snapshot, 4)
	ch <- schema.Snapshot{Seq: 1, Rooms: []schema.RoomSummary{{RoomID: "!a"}}}
	ch <- schema.Snapshot{Seq: 3, Rooms: []schema.RoomSummary{{RoomID: "!b"}}}
	ch <- schema.Snapshot{Seq: 2, Rooms: []schema.RoomSummary{{RoomID: "!stale"}}}
	close(ch)
	if err := rec.Run(context.Background(), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
	if seq, ok := rec.Saved(); !ok || seq != 3 {
		t.Fatalf("expected seq 3 saved, got %d %v", seq, ok)
	}
	got, ok, err := store.Load("roomlist")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Seq != 3 || got.Rooms[0].RoomID != "!b" {
		t.Fatalf("expected latest snapshot persisted, got %+v", got)
	}
	record, _, err := store.LoadRecord("roomlist")
	if err != nil || record.RunID != "run-1" {
		t.Fatalf("expected run id on record, got %q (%v)", record.RunID, err)
	}
}

func TestRecorderStopsOnContext(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRecorder(store, "roomlist", nil).Run(ctx, make(chan schema.Snapshot)); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/schema"
)

// FormatVersion is the snapshot record layout version. It is bumped whenever
// the on-disk layout changes incompatibly.
const FormatVersion = 1

// LatestEventRecord is the persisted latest event preview.
type LatestEventRecord struct {
	Sender    string `json:"sender,omitempty" yaml:"sender,omitempty"`
	Body      string `json:"body,omitempty" yaml:"body,omitempty"`
	Timestamp int64  `json:"ts,omitempty" yaml:"ts,omitempty"`
}

// RoomRecord is one persisted room summary.
type RoomRecord struct {
	RoomID            schema.RoomID     `json:"room_id" yaml:"room_id"`
	Name              string            `json:"name,omitempty" yaml:"name,omitempty"`
	CanonicalAlias    string            `json:"canonical_alias,omitempty" yaml:"canonical_alias,omitempty"`
	AvatarURL         string            `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	Membership        schema.Membership `json:"membership,omitempty" yaml:"membership,omitempty"`
	IsDirect          bool              `json:"is_direct,omitempty" yaml:"is_direct,omitempty"`
	IsFavorite        bool              `json:"is_favorite,omitempty" yaml:"is_favorite,omitempty"`
	IsMarkedUnread    bool              `json:"is_marked_unread,omitempty" yaml:"is_marked_unread,omitempty"`
	UnreadMessages    int               `json:"unread_messages,omitempty" yaml:"unread_messages,omitempty"`
	UnreadMentions    int               `json:"unread_mentions,omitempty" yaml:"unread_mentions,omitempty"`
	UnreadNotifyCount int               `json:"unread_notify_count,omitempty" yaml:"unread_notify_count,omitempty"`
	LatestEvent       LatestEventRecord `json:"latest_event,omitzero" yaml:"latest_event,omitempty"`
	Revision          uint64            `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// SnapshotRecord is the persisted form of a published snapshot.
type SnapshotRecord struct {
	Version     int          `json:"version" yaml:"version"`
	RunID       string       `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Seq         uint64       `json:"seq" yaml:"seq"`
	PublishedAt time.Time    `json:"published_at" yaml:"published_at"`
	Rooms       []RoomRecord `json:"rooms" yaml:"rooms"`
}

// Store persists room list snapshots to disk, one file per name.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Path returns the file a snapshot saved under name lives in.
func (s *Store) Path(name string) string {
	clean := sanitize(name)
	if clean == "" {
		clean = "roomlist"
	}
	return filepath.Join(s.dir, clean+".json")
}

// Load reads the snapshot saved under name. The boolean is false when nothing
// has been saved yet.
func (s *Store) Load(name string) (schema.Snapshot, bool, error) {
	record, ok, err := s.LoadRecord(name)
	if err != nil || !ok {
		return schema.Snapshot{}, ok, err
	}
	return record.Snapshot(), true, nil
}

// LoadRecord reads the raw record saved under name.
func (s *Store) LoadRecord(name string) (SnapshotRecord, bool, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("snapshot load miss", "name", name)
			return SnapshotRecord{}, false, nil
		}
		s.warn("snapshot load failed", "name", name, "err", err)
		return SnapshotRecord{}, false, err
	}
	var record SnapshotRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.warn("snapshot load failed", "name", name, "err", err)
		return SnapshotRecord{}, false, err
	}
	if record.Version != FormatVersion {
		err := fmt.Errorf("unsupported snapshot version %d (expected %d)", record.Version, FormatVersion)
		s.warn("snapshot load failed", "name", name, "err", err)
		return SnapshotRecord{}, false, err
	}
	s.debug("snapshot load ok", "name", name, "seq", record.Seq, "rooms", len(record.Rooms))
	return record, true, nil
}

// Save atomically replaces the snapshot stored under name.
func (s *Store) Save(name string, snapshot schema.Snapshot) error {
	return s.SaveRecord(name, NewSnapshotRecord(snapshot))
}

// SaveRecord atomically replaces the record stored under name.
func (s *Store) SaveRecord(name string, record SnapshotRecord) error {
	record.Version = FormatVersion
	if err := s.writeAtomic(s.Path(name), record); err != nil {
		s.warn("snapshot save failed", "name", name, "seq", record.Seq, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("snapshot save ok", "name", name, "seq", record.Seq, "rooms", len(record.Rooms), "run", record.RunID)
	}
	return nil
}

func (s *Store) writeAtomic(path string, record SnapshotRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "snapshot-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

// NewSnapshotRecord converts a snapshot into its persisted form.
func NewSnapshotRecord(snapshot schema.Snapshot) SnapshotRecord {
	rooms := make([]RoomRecord, 0, len(snapshot.Rooms))
	for _, room := range snapshot.Rooms {
		rooms = append(rooms, RoomRecord{
			RoomID:            room.RoomID,
			Name:              room.Name,
			CanonicalAlias:    room.CanonicalAlias,
			AvatarURL:         room.AvatarURL,
			Membership:        room.Membership,
			IsDirect:          room.IsDirect,
			IsFavorite:        room.IsFavorite,
			IsMarkedUnread:    room.IsMarkedUnread,
			UnreadMessages:    room.UnreadMessages,
			UnreadMentions:    room.UnreadMentions,
			UnreadNotifyCount: room.UnreadNotifyCount,
			LatestEvent: LatestEventRecord{
				Sender:    room.LatestEvent.Sender,
				Body:      room.LatestEvent.Body,
				Timestamp: room.LatestEvent.Timestamp,
			},
			Revision: room.Revision,
		})
	}
	return SnapshotRecord{
		Version:     FormatVersion,
		Seq:         snapshot.Seq,
		PublishedAt: snapshot.PublishedAt.UTC(),
		Rooms:       rooms,
	}
}

// Snapshot converts the record back into a snapshot.
func (r SnapshotRecord) Snapshot() schema.Snapshot {
	rooms := make([]schema.RoomSummary, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		rooms = append(rooms, schema.RoomSummary{
			RoomID:            room.RoomID,
			Name:              room.Name,
			CanonicalAlias:    room.CanonicalAlias,
			AvatarURL:         room.AvatarURL,
			Membership:        room.Membership,
			IsDirect:          room.IsDirect,
			IsFavorite:        room.IsFavorite,
			IsMarkedUnread:    room.IsMarkedUnread,
			UnreadMessages:    room.UnreadMessages,
			UnreadMentions:    room.UnreadMentions,
			UnreadNotifyCount: room.UnreadNotifyCount,
			LatestEvent: schema.LatestEvent{
				Sender:    room.LatestEvent.Sender,
				Body:      room.LatestEvent.Body,
				Timestamp: room.LatestEvent.Timestamp,
			},
			Revision: room.Revision,
		})
	}
	return schema.Snapshot{Seq: r.Seq, Rooms: rooms, PublishedAt: r.PublishedAt}
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

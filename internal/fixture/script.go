// Package fixture loads scripted room list update streams from YAML and
// serves the rooms they reference from memory.
//
// A script looks like:
//
//	rooms:
//	  - id: "!general:example.org"
//	    name: General
//	    unread: 3
//	batches:
//	  - - reset: ["!general:example.org", "!random:example.org"]
//	  - - insert: {index: 1, room: "!ops:example.org"}
//	    - remove: 0
//	  - - pop_back
//	rebuild:
//	  forget: ["!random:example.org"]
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pkt.systems/roomlist/core"
	"pkt.systems/roomlist/schema"
)

// Script is a decoded replay script.
type Script struct {
	// BuildDelay simulates summary enrichment latency per room.
	BuildDelay time.Duration `yaml:"build_delay"`
	Rooms      []RoomSpec    `yaml:"rooms"`
	Batches    [][]Step      `yaml:"batches"`
	Rebuild    *RebuildSpec  `yaml:"rebuild"`
}

// RoomSpec describes the data a room summary is built from.
type RoomSpec struct {
	ID         schema.RoomID     `yaml:"id"`
	Name       string            `yaml:"name"`
	Alias      string            `yaml:"alias"`
	Avatar     string            `yaml:"avatar"`
	Membership schema.Membership `yaml:"membership"`
	Direct     bool              `yaml:"direct"`
	Favorite   bool              `yaml:"favorite"`
	Unread     int               `yaml:"unread"`
	Mentions   int               `yaml:"mentions"`
	Latest     *LatestSpec       `yaml:"latest"`
}

// LatestSpec is the latest event preview of a room.
type LatestSpec struct {
	Sender    string `yaml:"sender"`
	Body      string `yaml:"body"`
	Timestamp int64  `yaml:"ts"`
}

// RebuildSpec requests a summary rebuild after every batch has been applied.
type RebuildSpec struct {
	// Forget lists rooms the lookup no longer resolves at rebuild time.
	Forget []schema.RoomID `yaml:"forget"`
}

// Step is one scripted list update.
type Step struct {
	Kind   core.UpdateKind
	Index  int
	Length int
	Rooms  []schema.RoomID
}

type indexedRoom struct {
	Index int           `yaml:"index"`
	Room  schema.RoomID `yaml:"room"`
}

// UnmarshalYAML accepts either a bare variant name (pop_back, pop_front,
// clear) or a single-key mapping from variant name to its arguments.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		kind := core.UpdateKind(node.Value)
		switch kind {
		case core.KindPopBack, core.KindPopFront, core.KindClear:
			*s = Step{Kind: kind}
			return nil
		}
		return fmt.Errorf("line %d: %w: %q needs arguments", node.Line, schema.ErrInvalidUpdate, node.Value)
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: %w: expected name or mapping", node.Line, schema.ErrInvalidUpdate)
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: %w: expected exactly one update per step", node.Line, schema.ErrInvalidUpdate)
	}
	key, value := node.Content[0], node.Content[1]
	step := Step{Kind: core.UpdateKind(key.Value)}
	var err error
	switch step.Kind {
	case core.KindAppend, core.KindReset:
		err = value.Decode(&step.Rooms)
	case core.KindPushBack, core.KindPushFront:
		var id schema.RoomID
		err = value.Decode(&id)
		step.Rooms = []schema.RoomID{id}
	case core.KindSet, core.KindInsert:
		var arg indexedRoom
		err = value.Decode(&arg)
		step.Index = arg.Index
		step.Rooms = []schema.RoomID{arg.Room}
	case core.KindRemove:
		err = value.Decode(&step.Index)
	case core.KindTruncate:
		err = value.Decode(&step.Length)
	case core.KindPopBack, core.KindPopFront, core.KindClear:
	default:
		return fmt.Errorf("line %d: %w: unknown update %q", key.Line, schema.ErrInvalidUpdate, key.Value)
	}
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", key.Line, key.Value, err)
	}
	for _, id := range step.Rooms {
		if err := schema.ValidateRoomID(id); err != nil {
			return fmt.Errorf("line %d: %s: %w", key.Line, key.Value, err)
		}
	}
	*s = step
	return nil
}

// Load reads and decodes a script file.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	return Parse(data)
}

// Parse decodes a script. Unknown fields are rejected.
func Parse(data []byte) (Script, error) {
	var script Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, errors.New("script is empty")
		}
		return Script{}, err
	}
	seen := make(map[schema.RoomID]struct{}, len(script.Rooms))
	for _, room := range script.Rooms {
		if err := schema.ValidateRoomID(room.ID); err != nil {
			return Script{}, fmt.Errorf("room %q: %w", room.ID, err)
		}
		if _, ok := seen[room.ID]; ok {
			return Script{}, fmt.Errorf("room %q declared twice", room.ID)
		}
		seen[room.ID] = struct{}{}
	}
	return script, nil
}

// Updates converts the scripted batches into list updates whose room handles
// are opened from dir.
func (s Script) Updates(dir *Directory) [][]core.Update {
	batches := make([][]core.Update, 0, len(s.Batches))
	for _, steps := range s.Batches {
		batch := make([]core.Update, 0, len(steps))
		for _, step := range steps {
			batch = append(batch, step.update(dir))
		}
		batches = append(batches, batch)
	}
	return batches
}

func (s Step) update(dir *Directory) core.Update {
	switch s.Kind {
	case core.KindSet:
		return core.Set{Index: s.Index, Room: dir.Open(s.Rooms[0])}
	case core.KindAppend:
		return core.Append{Rooms: dir.OpenAll(s.Rooms)}
	case core.KindPushBack:
		return core.PushBack{Room: dir.Open(s.Rooms[0])}
	case core.KindPushFront:
		return core.PushFront{Room: dir.Open(s.Rooms[0])}
	case core.KindInsert:
		return core.Insert{Index: s.Index, Room: dir.Open(s.Rooms[0])}
	case core.KindRemove:
		return core.Remove{Index: s.Index}
	case core.KindReset:
		return core.Reset{Rooms: dir.OpenAll(s.Rooms)}
	case core.KindPopBack:
		return core.PopBack{}
	case core.KindPopFront:
		return core.PopFront{}
	case core.KindTruncate:
		return core.Truncate{Length: s.Length}
	default:
		return core.Clear{}
	}
}

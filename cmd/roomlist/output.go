package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"pkt.systems/roomlist/internal/persist"
	"pkt.systems/roomlist/schema"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (text, json, yaml)", format)
}

func writeSnapshot(w io.Writer, snapshot schema.Snapshot, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(persist.NewSnapshotRecord(snapshot))
	case formatYAML:
		data, err := marshalYAML(persist.NewSnapshotRecord(snapshot))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return writeSnapshotText(w, snapshot)
	}
}

func writeSnapshotText(w io.Writer, snapshot schema.Snapshot) error {
	if _, err := fmt.Fprintf(w, "seq %d, %d rooms\n", snapshot.Seq, snapshot.Len()); err != nil {
		return err
	}
	if snapshot.Len() == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tROOM\tNAME\tUNREAD\tMENTIONS\tFLAGS")
	for i, room := range snapshot.Rooms {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", i, room.RoomID, room.Name, room.UnreadMessages, room.UnreadMentions, roomFlags(room))
	}
	return tw.Flush()
}

func roomFlags(room schema.RoomSummary) string {
	var flags []string
	if room.IsDirect {
		flags = append(flags, "dm")
	}
	if room.IsFavorite {
		flags = append(flags, "fav")
	}
	if room.IsMarkedUnread {
		flags = append(flags, "unread")
	}
	if room.Membership != "" && room.Membership != schema.MembershipJoined {
		flags = append(flags, string(room.Membership))
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func marshalYAML(value any) ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

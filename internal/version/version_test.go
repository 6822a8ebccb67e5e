package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestStampedVersionWins(t *testing.T) {
	bi := &debug.BuildInfo{Main: debug.Module{Path: "pkt.systems/roomlist", Version: "v0.3.0"}}
	info := fromBuildInfo(bi, "v1.2.3")
	if info.Version != "v1.2.3" || info.Modified {
		t.Fatalf("expected stamped version, got %+v", info)
	}
	if info.Module != "pkt.systems/roomlist" {
		t.Fatalf("unexpected module %q", info.Module)
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "pkt.systems/roomlist", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := fromBuildInfo(bi, "")
	if info.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected pseudo version %q", info.Version)
	}
	if !info.Committed.Equal(ts) || info.Revision != "1234567890abcdef" {
		t.Fatalf("unexpected vcs info: %+v", info)
	}
	if got := info.String(); got != info.Version+"+dirty" {
		t.Fatalf("expected dirty marker, got %q", got)
	}
}

func TestModuleVersionDirtySuffix(t *testing.T) {
	bi := &debug.BuildInfo{Main: debug.Module{Path: "pkt.systems/roomlist", Version: "v0.4.0+dirty"}}
	info := fromBuildInfo(bi, "")
	if info.Version != "v0.4.0" || !info.Modified {
		t.Fatalf("expected dirty suffix split off, got %+v", info)
	}
}

func TestUnknownWithoutBuildInfo(t *testing.T) {
	info := fromBuildInfo(nil, "")
	if info.Version != "v0.0.0-unknown" || info.Module != defaultModule {
		t.Fatalf("unexpected fallback: %+v", info)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Fatalf("expected toolchain fields, got %+v", info)
	}
}

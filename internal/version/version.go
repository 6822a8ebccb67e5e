package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/roomlist"

// buildVersion is set via -ldflags "-X pkt.systems/roomlist/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running roomlist build.
type Info struct {
	Module    string    `json:"module" yaml:"module"`
	Version   string    `json:"version" yaml:"version"`
	Revision  string    `json:"revision,omitempty" yaml:"revision,omitempty"`
	Committed time.Time `json:"committed,omitzero" yaml:"committed,omitempty"`
	Modified  bool      `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string    `json:"go" yaml:"go"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// Read collects build information from the binary.
func Read() Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(bi, buildVersion)
}

// Current returns the version without the dirty marker.
func Current() string {
	return Read().Version
}

// String renders the version, marking builds from a modified tree.
func (i Info) String() string {
	if i.Modified {
		return i.Version + "+dirty"
	}
	return i.Version
}

// fromBuildInfo prefers an ldflags version, then the module version, then a
// pseudo-version derived from VCS stamps.
func fromBuildInfo(bi *debug.BuildInfo, stamped string) Info {
	info := Info{
		Module:    defaultModule,
		Version:   "v0.0.0-unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi != nil {
		if path := strings.TrimSpace(bi.Main.Path); path != "" {
			info.Module = path
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Revision = setting.Value
			case "vcs.time":
				if ts, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.Committed = ts.UTC()
				}
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
		if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
			info.setVersion(v)
		} else if pseudo := info.pseudo(); pseudo != "" {
			info.Version = pseudo
		}
	}
	if v := strings.TrimSpace(stamped); v != "" {
		info.setVersion(v)
	}
	return info
}

func (i *Info) setVersion(v string) {
	if trimmed, dirty := strings.CutSuffix(v, "+dirty"); dirty {
		i.Modified = true
		v = trimmed
	}
	i.Version = v
}

func (i Info) pseudo() string {
	if i.Revision == "" || i.Committed.IsZero() {
		return ""
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + i.Committed.Format("20060102150405") + "-" + rev
}

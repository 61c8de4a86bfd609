package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X chibi/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build identity. Fields not stamped through ldflags
// are taken from the VCS settings the go tool embeds, when present.
type Info struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
	Go       string
}

// Read resolves the build identity.
func Read() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Go = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short returns a compact build identifier for logging.
func Short() string {
	return Read().Short()
}

func (i Info) Short() string {
	id := "dev"
	switch {
	case i.Version != "" && i.Version != "dev":
		id = i.Version
	case i.Commit != "" && i.Commit != "unknown":
		id = i.Commit
		if len(id) > 12 {
			id = id[:12]
		}
	}
	if i.Modified {
		id += "+dirty"
	}
	return id
}

func (i Info) String() string {
	s := fmt.Sprintf("%s\n  commit: %s\n  built: %s", i.Version, i.Commit, i.Date)
	if i.Go != "" {
		s += "\n  go: " + i.Go
	}
	return s
}

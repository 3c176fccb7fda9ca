// Package version carries build metadata set with -ldflags.
package version

import (
	"runtime/debug"
	"time"
)

// Set at link time:
//
//	-X github.com/jo25425/dona-sub000/internal/version.Version=v1.2.0
var (
	Version  = "dev"
	Revision = ""
	BuiltAt  = ""
)

// Info is the resolved build description.
type Info struct {
	Version  string
	Revision string
	BuiltAt  time.Time
}

// Get resolves Info, falling back to VCS stamps from the Go toolchain.
func Get() Info {
	info := Info{Version: Version, Revision: Revision}
	if t, err := time.Parse(time.RFC3339, BuiltAt); err == nil {
		info.BuiltAt = t
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Revision == "" {
					info.Revision = s.Value
				}
			case "vcs.time":
				if info.BuiltAt.IsZero() {
					if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
						info.BuiltAt = t
					}
				}
			}
		}
	}
	return info
}

// String renders "version (revision)" or just the version.
func (i Info) String() string {
	if i.Revision == "" {
		return i.Version
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return i.Version + " (" + rev + ")"
}

// Package version identifies the running usagemeter binary and replica.
//
// Release builds stamp Version, GitCommit and BuildDate with
//
//	-ldflags "-X usagemeter/internal/version.Version=v1.4.0 ..."
//
// Plain `go build` leaves them empty, in which case the VCS stamp embedded by
// the toolchain is used instead.
package version

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Set at link time.
var (
	Version   string
	GitCommit string
	BuildDate string
)

const unknown = "unknown"

// Info describes the binary and the replica running it. Replicas share
// build fields and differ in InstanceID, which is what ties logs, traces
// and metrics from one process together when several replicas share a
// counter store.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	Dirty      bool   `json:"dirty,omitempty"`
	GoVersion  string `json:"go_version"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once    sync.Once
	current Info
)

// GetInfo returns the Info for this process. It is resolved once.
func GetInfo() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		current = resolve(Version, GitCommit, BuildDate, bi)
		current.InstanceID = uuid.NewString()
		current.Hostname = hostname()
	})
	return current
}

// resolve merges link-time values with the toolchain's build info. Link-time
// values win; whatever is still missing becomes "unknown".
func resolve(ver, commit, date string, bi *debug.BuildInfo) Info {
	info := Info{
		Version:   ver,
		GitCommit: commit,
		BuildDate: date,
		GoVersion: runtime.Version(),
	}

	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = shortCommit(s.Value)
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}

	for _, f := range []*string{&info.Version, &info.GitCommit, &info.BuildDate} {
		if *f == "" {
			*f = unknown
		}
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return unknown
	}
	return h
}

// LogAttrs returns the fields attached to every log record.
func (i Info) LogAttrs() []any {
	return []any{
		slog.String("version", i.Version),
		slog.String("git_commit", i.GitCommit),
		slog.String("build_date", i.BuildDate),
		slog.String("instance_id", i.InstanceID),
	}
}

// String is the -version output.
func (i Info) String() string {
	commit := i.GitCommit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("usagemeter %s (commit %s, built %s, %s)", i.Version, commit, i.BuildDate, i.GoVersion)
}

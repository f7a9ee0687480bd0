// Package version reports build metadata.
package version

import (
	"runtime/debug"
	"sync"
)

// Set by -ldflags "-X github.com/memohai/claimd/internal/version.Version=...".
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

var readVCS sync.Once

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Info returns build metadata, filling missing VCS fields from the embedded build info.
func Info() Build {
	readVCS.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Build{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
}

// GetInfo renders the version with a short commit, e.g. "v1.2.0 (abc1234)".
func GetInfo() string {
	b := Info()
	if b.Commit == "" {
		return b.Version
	}
	short := b.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return b.Version + " (" + short + ")"
}

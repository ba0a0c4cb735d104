// Package version reports build identity for the /version RPC endpoint and
// the CLI's own version subcommand: a single GitCommit string compare covers
// the daemon/CLI version-skew check this exists for.
package version

import "runtime/debug"

var (
	GitRepo   string
	GitBranch string
	GitCommit string
	BuildTime string
)

// Info is the version record exchanged over the optional RPC front end.
type Info struct {
	GitRepo   string           `json:"gitRepo,omitempty"`
	GitBranch string           `json:"gitBranch,omitempty"`
	GitCommit string           `json:"gitCommit,omitempty"`
	BuildTime string           `json:"buildTime,omitempty"`
	BuildInfo *debug.BuildInfo `json:"buildInfo,omitempty"`
}

// Get returns this process's version information.
func Get() Info {
	info := Info{GitRepo: GitRepo, GitBranch: GitBranch, GitCommit: GitCommit, BuildTime: BuildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.BuildInfo = bi
	}
	return info
}

// Equal reports whether two Infos describe the same build, by GitCommit.
func (v Info) Equal(other Info) bool {
	return v.GitCommit == other.GitCommit
}

package main

import (
	"fmt"

	"github.com/jiandong01/firebox/version"
)

// VersionCmd prints build identity.
type VersionCmd struct{}

func (c *VersionCmd) Run(cctx *Context) error {
	info := version.Get()
	fmt.Printf("Git Repository: %s\n", info.GitRepo)
	fmt.Printf("Git Branch: %s\n", info.GitBranch)
	fmt.Printf("Git Commit: %s\n", info.GitCommit)
	fmt.Printf("Build Time: %s\n", info.BuildTime)
	if info.BuildInfo == nil {
		return nil
	}
	for _, setting := range info.BuildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				fmt.Printf("Git Commit: %s\n", setting.Value)
			}
		case "vcs.time":
			if info.BuildTime == "" {
				fmt.Printf("Commit Time: %s\n", setting.Value)
			}
		case "vcs.modified":
			fmt.Printf("Modified: %s\n", setting.Value)
		}
	}
	return nil
}

// Package version holds build information injected with -ldflags, e.g.
//
//	-X go.miloapis.com/auditdashboard/internal/version.Version=v0.3.0
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	apimachineryversion "k8s.io/apimachinery/pkg/version"
)

var (
	Version      = "v0.0.0-dev"
	GitCommit    = ""
	GitTreeState = ""
	BuildDate    = "1970-01-01T00:00:00Z"
)

// Get returns the build information of the running binary. Fields not set at link
// time fall back to the VCS stamps recorded by the Go toolchain.
func Get() apimachineryversion.Info {
	commit, treeState := GitCommit, GitTreeState
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					commit = s.Value
				case "vcs.modified":
					if s.Value == "true" {
						treeState = "dirty"
					} else {
						treeState = "clean"
					}
				}
			}
		}
	}

	return apimachineryversion.Info{
		GitVersion:   Version,
		GitCommit:    commit,
		GitTreeState: treeState,
		BuildDate:    BuildDate,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

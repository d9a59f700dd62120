// Package version reports the build identity of the agent.
package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Name      = "stellar-emp"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is the build identity served by the version endpoint.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current version information.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// UserAgent identifies the agent to remote players.
func UserAgent() string {
	return Name + "/" + Version
}

func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version represents the current version of warden.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
}

// WardenVersion is the current version of warden.
var WardenVersion = Version{Major: "0", Minor: "3", Patch: "0"}

func (v Version) String() string {
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s\nGo: %s", ver, Build(), runtime.Version())
}

// Build returns the vcs revision recorded in the binary's build info,
// or "unknown" for binaries built outside a checkout.
func Build() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}

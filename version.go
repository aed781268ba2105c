package tether

import (
	"runtime"
	"runtime/debug"
)

// modulePath is the import path of this module.
const modulePath = "github.com/arloliu/tether"

// Version is the library version. Release builds may override it with
// -ldflags "-X github.com/arloliu/tether.Version=v1.2.3".
var Version = "devel"

// Build describes the running binary.
type Build struct {
	// Version is the tether module version linked into the binary.
	Version string
	// GoVersion is the toolchain the binary was built with.
	GoVersion string
	// Revision is the VCS revision of the main module, if recorded.
	Revision string
	// Modified reports uncommitted changes at build time.
	Modified bool
}

// BuildInfo returns version information about the running binary.
//
// The tether version comes from the module dependency list when tether is
// linked as a library, and falls back to Version otherwise.
func BuildInfo() Build {
	b := Build{Version: Version, GoVersion: runtime.Version()}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}

	if info.Main.Path == modulePath && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			b.Version = dep.Version
		}
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}

	return b
}

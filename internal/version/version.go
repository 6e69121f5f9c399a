// Package version carries build metadata set with -ldflags "-X".
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

func GoVersion() string { return runtime.Version() }

func String() string {
	s := Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}

package main

import (
	"runtime/debug"
)

const name = "hostrep"

// version is the module version from build info, or "(devel)" for local
// builds. Release builds may override it with -ldflags "-X main.version=...".
var version = buildVersion()

func buildVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "(devel)"
	}
	return bi.Main.Version
}

package main

import (
	"os"
	"runtime/debug"

	"github.com/3leaps/wheelfetch/internal/cli"
)

func init() {
	cli.Handler = run
	version = moduleVersion(version)
}

// moduleVersion prefers the module version recorded by `go install` when the
// binary was built without -ldflags.
func moduleVersion(linked string) string {
	if linked != "dev" {
		return linked
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return linked
	}
	return info.Main.Version
}

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Package cli decouples the wheelfetch entrypoint from package main so the
// command tree can be driven in-process with captured stdout and stderr.
package cli

import (
	"fmt"
	"io"
)

// Handler runs one invocation and returns its process exit status. The main
// package installs it from init.
var Handler func(args []string, stdout, stderr io.Writer) int

// Run invokes Handler. A panic escaping the command tree is reported on
// stderr as a single error line with status 1, matching ordinary failures.
func Run(args []string, stdout, stderr io.Writer) (code int) {
	if Handler == nil {
		fmt.Fprintln(stderr, "error: wheelfetch handler not configured")
		return 1
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "error: internal: %v\n", r)
			code = 1
		}
	}()
	return Handler(args, stdout, stderr)
}

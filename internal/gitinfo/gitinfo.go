// Package gitinfo queries the local git checkout for the revision to fetch
// artifacts for.
package gitinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const maxCommandError = 512

// Git is the executable used for queries.
var Git = "git"

// HeadRevision returns the full commit hash checked out in dir.
func HeadRevision(ctx context.Context, dir string) (string, error) {
	out, err := run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("git rev-parse HEAD: empty output")
	}
	return out, nil
}

// ExactTag returns the tag pointing exactly at HEAD, if any. A checkout that
// is not on a tag is not an error.
func ExactTag(ctx context.Context, dir string) (string, bool, error) {
	out, err := run(ctx, dir, "describe", "--exact-match", "--tags")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", false, nil
		}
		return "", false, err
	}
	return out, out != "", nil
}

// Ref picks the ref runs are recorded against: the exact tag when HEAD is
// tagged, otherwise defaultBranch.
func Ref(ctx context.Context, dir, defaultBranch string) (string, error) {
	tag, ok, err := ExactTag(ctx, dir)
	if err != nil {
		return "", err
	}
	if ok {
		return tag, nil
	}
	return defaultBranch, nil
}

type commandError struct {
	args   []string
	output string
	err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s %s: %s", Git, strings.Join(e.args, " "), e.output)
}

func (e *commandError) Unwrap() error { return e.err }

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, Git, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &commandError{args: args, output: trimCommandOutput(stderr.String()), err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func trimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}

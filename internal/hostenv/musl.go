package hostenv

import (
	"bytes"
	"context"
	"debug/elf"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var muslVersionLine = regexp.MustCompile(`^Version (\d+)\.(\d+)`)

// DetectMusl reports the musl version an executable is linked against.
// Best effort only: any failure reads as "not musl".
func DetectMusl(ctx context.Context, executable string) (Version, bool) {
	if executable == "" {
		return Version{}, false
	}
	loader, ok := elfInterpreter(executable)
	if !ok || !strings.Contains(filepath.Base(loader), "musl") {
		return Version{}, false
	}

	// The musl loader prints its banner to stderr and exits non-zero when
	// run without arguments.
	cmd := exec.CommandContext(ctx, loader) // #nosec G204 -- loader path read from PT_INTERP
	var out bytes.Buffer
	cmd.Stderr = &out
	cmd.Stdout = io.Discard
	_ = cmd.Run()
	return parseMuslVersion(out.String())
}

func elfInterpreter(path string) (string, bool) {
	f, err := elf.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		data, err := io.ReadAll(prog.Open())
		if err != nil {
			return "", false
		}
		return strings.TrimRight(string(data), "\x00"), true
	}
	return "", false
}

func parseMuslVersion(output string) (Version, bool) {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "musl") {
		return Version{}, false
	}
	m := muslVersionLine.FindStringSubmatch(lines[1])
	if m == nil {
		return Version{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return Version{Major: major, Minor: minor}, true
}

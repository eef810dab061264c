package hostenv

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Version is a MAJOR.MINOR pair (glibc, musl, macOS, Python).
type Version struct {
	Major int
	Minor int
}

func (v Version) IsZero() bool { return v.Major == 0 && v.Minor == 0 }

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// ParseVersion reads the leading MAJOR.MINOR of s ("2.35", "14.2.1", "3.12").
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("version %q: want MAJOR.MINOR", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("parse major %q: %w", parts[0], err)
	}
	minor, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil {
		return Version{}, fmt.Errorf("parse minor %q: %w", parts[1], err)
	}
	return Version{Major: major, Minor: minor}, nil
}

func leadingDigits(s string) string {
	for i, ch := range s {
		if ch < '0' || ch > '9' {
			return s[:i]
		}
	}
	return s
}

// Interpreter describes the Python runtime that will install the wheels.
// Only the facts needed to derive compatibility tags are kept.
type Interpreter struct {
	Implementation string // sys.implementation.name, e.g. "cpython", "pypy"
	Python         Version
	Debug          bool
	FreeThreaded   bool
	SOABI          string

	OS   string // "linux", "darwin", "windows"
	Arch string // wheel-style machine name: x86_64, aarch64, i686, arm64, amd64 ...

	// Platform is sysconfig.get_platform() with '-' and '.' mapped to '_'.
	Platform string

	Glibc Version // zero when the interpreter is not linked against glibc
	Musl  Version // zero when the interpreter is not linked against musl
	MacOS Version

	Executable string
}

var goarchToMachine = map[string]map[string]string{
	"linux": {
		"amd64":   "x86_64",
		"386":     "i686",
		"arm64":   "aarch64",
		"arm":     "armv7l",
		"ppc64le": "ppc64le",
		"s390x":   "s390x",
		"riscv64": "riscv64",
	},
	"darwin": {
		"amd64": "x86_64",
		"arm64": "arm64",
	},
	"windows": {
		"amd64": "amd64",
		"386":   "win32",
		"arm64": "arm64",
	},
}

// FromRuntime builds an Interpreter for a pinned CPython version using the
// Go runtime's OS and architecture. libc and macOS versions are left for the
// caller to fill in.
func FromRuntime(python Version) (Interpreter, error) {
	return fromGo(runtime.GOOS, runtime.GOARCH, python)
}

func fromGo(goos, goarch string, python Version) (Interpreter, error) {
	machines, ok := goarchToMachine[goos]
	if !ok {
		return Interpreter{}, fmt.Errorf("unsupported os %s", goos)
	}
	machine, ok := machines[goarch]
	if !ok {
		return Interpreter{}, fmt.Errorf("unsupported arch %s/%s", goos, goarch)
	}

	in := Interpreter{
		Implementation: "cpython",
		Python:         python,
		OS:             goos,
		Arch:           machine,
	}
	switch goos {
	case "linux":
		in.Platform = "linux_" + machine
	case "darwin":
		in.Platform = "macosx_11_0_" + machine
	case "windows":
		if machine == "win32" {
			in.Platform = "win32"
		} else {
			in.Platform = "win_" + machine
		}
	}
	return in, nil
}

// normalizePlatform maps sysconfig.get_platform() output to a wheel platform tag.
func normalizePlatform(p string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(p)))
}

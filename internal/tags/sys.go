package tags

import (
	"fmt"
	"strings"

	"github.com/3leaps/wheelfetch/internal/hostenv"
)

var interpreterShortNames = map[string]string{
	"cpython":    "cp",
	"pypy":       "pp",
	"ironpython": "ip",
	"jython":     "jy",
}

// ForInterpreter returns the tags supported by in, most specific first.
// The order matches what pip considers when selecting a wheel.
func ForInterpreter(in hostenv.Interpreter) *Set {
	plats := Platforms(in)
	s := NewSet()

	impl := in.Implementation
	if impl == "" {
		impl = "cpython"
	}

	// Only CPython and PyPy get an interpreter-specific "-none-any" tag, and
	// PyPy's is major-version only.
	var anyInterp string
	switch impl {
	case "cpython":
		anyInterp = cpythonTags(s, in, plats)
	case "pypy":
		genericTags(s, in, impl, plats)
		anyInterp = fmt.Sprintf("pp%d", in.Python.Major)
	default:
		genericTags(s, in, impl, plats)
	}
	compatibleTags(s, in.Python, anyInterp, plats)
	return s
}

func versionNoDot(major, minor int) string {
	return fmt.Sprintf("%d%d", major, minor)
}

func cpythonAbis(in hostenv.Interpreter) []string {
	version := versionNoDot(in.Python.Major, in.Python.Minor)
	threading, debug, pymalloc := "", "", ""
	if in.Debug {
		debug = "d"
	}
	if in.FreeThreaded && !in.Python.Less(hostenv.Version{Major: 3, Minor: 13}) {
		threading = "t"
	}

	var abis []string
	if in.Python.Less(hostenv.Version{Major: 3, Minor: 8}) {
		pymalloc = "m"
	} else if debug != "" {
		// debug builds can also load non-debug extension modules
		abis = append(abis, "cp"+version+threading)
	}
	return append([]string{"cp" + version + threading + debug + pymalloc}, abis...)
}

func abi3Applies(in hostenv.Interpreter) bool {
	return !in.Python.Less(hostenv.Version{Major: 3, Minor: 2}) && !in.FreeThreaded
}

func cpythonTags(s *Set, in hostenv.Interpreter, plats []string) string {
	interp := "cp" + versionNoDot(in.Python.Major, in.Python.Minor)
	for _, abi := range cpythonAbis(in) {
		for _, p := range plats {
			s.add(New(interp, abi, p))
		}
	}
	if abi3Applies(in) {
		for _, p := range plats {
			s.add(New(interp, "abi3", p))
		}
	}
	for _, p := range plats {
		s.add(New(interp, "none", p))
	}
	if abi3Applies(in) {
		for minor := in.Python.Minor - 1; minor > 1; minor-- {
			older := "cp" + versionNoDot(in.Python.Major, minor)
			for _, p := range plats {
				s.add(New(older, "abi3", p))
			}
		}
	}
	return interp
}

// genericABI derives the ABI tag from SOABI the way packaging does for
// non-CPython interpreters.
func genericABI(soabi string) string {
	soabi = strings.TrimSpace(soabi)
	if soabi == "" {
		return ""
	}
	parts := strings.Split(soabi, "-")
	switch {
	case strings.HasPrefix(soabi, "pypy") && len(parts) >= 2:
		soabi = strings.Join(parts[:2], "-")
	case strings.HasPrefix(soabi, "graalpy") && len(parts) >= 3:
		soabi = strings.Join(parts[:3], "-")
	}
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToLower(soabi))
}

func genericTags(s *Set, in hostenv.Interpreter, impl string, plats []string) {
	short, ok := interpreterShortNames[impl]
	if !ok {
		short = impl
	}
	interp := short + versionNoDot(in.Python.Major, in.Python.Minor)

	var abis []string
	if abi := genericABI(in.SOABI); abi != "" && abi != "none" {
		abis = append(abis, abi)
	}
	abis = append(abis, "none")
	for _, abi := range abis {
		for _, p := range plats {
			s.add(New(interp, abi, p))
		}
	}
}

func pyInterpreterRange(v hostenv.Version) []string {
	out := []string{
		"py" + versionNoDot(v.Major, v.Minor),
		fmt.Sprintf("py%d", v.Major),
	}
	for minor := v.Minor - 1; minor >= 0; minor-- {
		out = append(out, "py"+versionNoDot(v.Major, minor))
	}
	return out
}

func compatibleTags(s *Set, v hostenv.Version, interp string, plats []string) {
	versions := pyInterpreterRange(v)
	for _, version := range versions {
		for _, p := range plats {
			s.add(New(version, "none", p))
		}
	}
	if interp != "" {
		s.add(New(interp, "none", "any"))
	}
	for _, version := range versions {
		s.add(New(version, "none", "any"))
	}
}

// Package tags models wheel compatibility tags and computes the ordered tag
// set supported by a Python interpreter.
package tags

import (
	"fmt"
	"sort"
	"strings"
)

// Tag is one interpreter/ABI/platform triple. Values are lower case.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

func New(interpreter, abi, platform string) Tag {
	return Tag{
		Interpreter: strings.ToLower(interpreter),
		ABI:         strings.ToLower(abi),
		Platform:    strings.ToLower(platform),
	}
}

func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// Parse expands a compressed tag string such as "py2.py3-none-any" into the
// cartesian product of its dotted components.
func Parse(compressed string) ([]Tag, error) {
	parts := strings.Split(compressed, "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("tag %q: want interpreter-abi-platform", compressed)
	}
	interps := strings.Split(parts[0], ".")
	abis := strings.Split(parts[1], ".")
	plats := strings.Split(parts[2], ".")
	for _, group := range [][]string{interps, abis, plats} {
		for _, v := range group {
			if v == "" {
				return nil, fmt.Errorf("tag %q: empty component", compressed)
			}
		}
	}

	seen := make(map[Tag]struct{}, len(interps)*len(abis)*len(plats))
	out := make([]Tag, 0, len(interps)*len(abis)*len(plats))
	for _, i := range interps {
		for _, a := range abis {
			for _, p := range plats {
				t := New(i, a, p)
				if _, dup := seen[t]; dup {
					continue
				}
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// Compress renders tags in the dotted form used in wheel filenames. The input
// is expected to be a cartesian product, which is what Parse produces.
func Compress(ts []Tag) string {
	interps := uniqueSorted(ts, func(t Tag) string { return t.Interpreter })
	abis := uniqueSorted(ts, func(t Tag) string { return t.ABI })
	plats := uniqueSorted(ts, func(t Tag) string { return t.Platform })
	return strings.Join(interps, ".") + "-" + strings.Join(abis, ".") + "-" + strings.Join(plats, ".")
}

func uniqueSorted(ts []Tag, field func(Tag) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range ts {
		v := field(t)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Set is an ordered, duplicate-free list of tags with constant time lookup.
// Earlier tags are more specific to the interpreter.
type Set struct {
	order []Tag
	index map[Tag]int
}

func NewSet(ts ...Tag) *Set {
	s := &Set{index: make(map[Tag]int, len(ts))}
	for _, t := range ts {
		s.add(t)
	}
	return s
}

func (s *Set) add(t Tag) {
	if _, ok := s.index[t]; ok {
		return
	}
	s.index[t] = len(s.order)
	s.order = append(s.order, t)
}

// Contains reports whether t is in the set.
func (s *Set) Contains(t Tag) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[t]
	return ok
}

// Rank returns the position of t (lower is preferred) or -1.
func (s *Set) Rank(t Tag) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[t]; ok {
		return i
	}
	return -1
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Tags returns a copy of the ordered tags.
func (s *Set) Tags() []Tag {
	if s == nil {
		return nil
	}
	return append([]Tag(nil), s.order...)
}

// ParseList builds a Set from full tag strings, expanding compressed forms.
func ParseList(values []string) (*Set, error) {
	s := NewSet()
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		expanded, err := Parse(v)
		if err != nil {
			return nil, err
		}
		for _, t := range expanded {
			s.add(t)
		}
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("no platform tags given")
	}
	return s, nil
}

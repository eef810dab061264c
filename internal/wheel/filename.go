// Package wheel parses wheel filenames and matches them against a tag set.
package wheel

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/3leaps/wheelfetch/internal/model"
	"github.com/3leaps/wheelfetch/internal/tags"
)

// Extension is the only archive extension accepted for wheels.
const Extension = ".whl"

var (
	namePattern  = regexp.MustCompile(`^[\p{L}\p{N}_.]+$`)
	buildPattern = regexp.MustCompile(`^(\d+)(.*)$`)
	// PEP 440 public and local versions.
	versionPattern = regexp.MustCompile(`(?i)^v?(?:[0-9]+!)?[0-9]+(?:\.[0-9]+)*` +
		`(?:[-_.]?(?:alpha|a|beta|b|preview|pre|c|rc)[-_.]?[0-9]*)?` +
		`(?:-[0-9]+|[-_.]?(?:post|rev|r)[-_.]?[0-9]*)?` +
		`(?:[-_.]?dev[-_.]?[0-9]*)?` +
		`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?$`)
	nameSeparators = regexp.MustCompile(`[-_.]+`)
)

// Filename is a parsed wheel filename.
type Filename struct {
	Raw         string
	Name        string // canonical distribution name
	Version     string
	Build       string // empty when the optional build tag is absent
	BuildNumber int
	BuildSuffix string
	Tags        []tags.Tag
}

// CanonicalizeName lower-cases name and collapses runs of '-', '_' and '.'.
func CanonicalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

// ParseFilename splits name into its wheel components. Failures carry
// model.ErrInvalidFilename.
func ParseFilename(name string) (Filename, error) {
	if !strings.HasSuffix(name, Extension) {
		return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: extension is not %s", name, Extension)
	}
	stem := strings.TrimSuffix(name, Extension)

	dashes := strings.Count(stem, "-")
	if dashes != 4 && dashes != 5 {
		return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: wrong number of parts", name)
	}
	parts := strings.SplitN(stem, "-", dashes-1)

	namePart := parts[0]
	if strings.Contains(namePart, "__") || !namePattern.MatchString(namePart) {
		return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: invalid project name", name)
	}
	if !versionPattern.MatchString(parts[1]) {
		return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: invalid version %q", name, parts[1])
	}

	f := Filename{
		Raw:     name,
		Name:    CanonicalizeName(namePart),
		Version: parts[1],
	}
	if dashes == 5 {
		m := buildPattern.FindStringSubmatch(parts[2])
		if m == nil {
			return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: invalid build number %q", name, parts[2])
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Filename{}, model.Errorf(model.ErrInvalidFilename, "%q: invalid build number %q", name, parts[2])
		}
		f.Build = parts[2]
		f.BuildNumber = n
		f.BuildSuffix = m[2]
	}

	expanded, err := tags.Parse(parts[len(parts)-1])
	if err != nil {
		return Filename{}, model.Wrap(model.ErrInvalidFilename, err, "%q", name)
	}
	f.Tags = expanded
	return f, nil
}

// String renders f in canonical form. The tag set is preserved; the exact
// bytes of the original filename are not.
func (f Filename) String() string {
	parts := []string{strings.ReplaceAll(f.Name, "-", "_"), f.Version}
	if f.Build != "" {
		parts = append(parts, f.Build)
	}
	parts = append(parts, tags.Compress(f.Tags))
	return strings.Join(parts, "-") + Extension
}

// IsCompatible reports whether any tag declared by f is in supported.
func IsCompatible(f Filename, supported *tags.Set) bool {
	for _, t := range f.Tags {
		if supported.Contains(t) {
			return true
		}
	}
	return false
}

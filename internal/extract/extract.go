// Package extract downloads an artifact archive and writes the wheels it
// contains that the target interpreter can install.
//
// Entries are untrusted. Every candidate name is validated before anything
// is written, so an archive that fails validation leaves destDir untouched.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/model"
	"github.com/3leaps/wheelfetch/internal/tags"
	"github.com/3leaps/wheelfetch/internal/verify"
	"github.com/3leaps/wheelfetch/internal/wheel"
)

const (
	DefaultMaxArchiveBytes int64 = 1 << 30
	DefaultMaxEntryBytes   int64 = 512 << 20
)

// File is one wheel written to disk.
type File struct {
	Wheel    wheel.Filename `json:"-" yaml:"-"`
	Name     string         `json:"name" yaml:"name"`
	Path     string         `json:"path" yaml:"path"`
	Size     int64          `json:"size" yaml:"size"`
	Verified verify.Result  `json:"verified" yaml:"verified"`
}

type Options struct {
	MaxEntryBytes int64
	Policy        verify.Policy
}

func (o Options) entryLimit() int64 {
	if o.MaxEntryBytes <= 0 {
		return DefaultMaxEntryBytes
	}
	return o.MaxEntryBytes
}

// Downloader fetches an archive body. *github.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string, limit int64) ([]byte, error)
}

type Extractor struct {
	dl              Downloader
	supported       *tags.Set
	maxArchiveBytes int64
	opts            Options
}

func New(dl Downloader, supported *tags.Set, maxArchiveBytes int64, opts Options) *Extractor {
	if maxArchiveBytes <= 0 {
		maxArchiveBytes = DefaultMaxArchiveBytes
	}
	return &Extractor{dl: dl, supported: supported, maxArchiveBytes: maxArchiveBytes, opts: opts}
}

// FetchAndExtract downloads artifact and extracts its compatible wheels into
// destDir.
func (e *Extractor) FetchAndExtract(ctx context.Context, artifact model.Artifact, destDir string) ([]File, error) {
	data, err := e.dl.Download(ctx, artifact.ArchiveDownloadURL, e.maxArchiveBytes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "download %s", artifact.Name)
	}
	logrus.WithFields(logrus.Fields{
		"component": "extract",
		"artifact":  artifact.Name,
		"size":      verify.FormatSize(int64(len(data))),
	}).Debug("archive downloaded")
	return Extract(bytes.NewReader(data), int64(len(data)), destDir, e.supported, e.opts)
}

type selection struct {
	entry    *zip.File
	name     string
	parsed   wheel.Filename
	verified verify.Result
}

// Extract writes the wheels in the zip archive r that are compatible with
// supported into destDir, in archive order, and returns them.
func Extract(r io.ReaderAt, size int64, destDir string, supported *tags.Set, opts Options) ([]File, error) {
	log := logrus.WithField("component", "extract")

	zr, err := zip.NewReader(r, size)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, model.Wrap(model.ErrCorruptArchive, err, "open archive")
	}

	// Every candidate name is vetted before any other check so an unsafe
	// entry is reported as such wherever it sits in the archive.
	var candidates, sidecarEntries []*zip.File
	for _, f := range zr.File {
		name := f.Name
		if !strings.HasSuffix(name, wheel.Extension) {
			if verify.IsSidecar(name) && !unsafeName(name) {
				sidecarEntries = append(sidecarEntries, f)
			}
			continue
		}
		if unsafeName(name) {
			return nil, model.Errorf(model.ErrUnsafeEntryName, "archive entry %q", name)
		}
		candidates = append(candidates, f)
	}

	limit := opts.entryLimit()
	var selected []selection
	seen := make(map[string]struct{})
	for _, f := range candidates {
		name := f.Name
		parsed, err := wheel.ParseFilename(name)
		if err != nil {
			log.WithError(err).WithField("entry", name).Debug("skipping entry with unparseable name")
			continue
		}
		if !wheel.IsCompatible(parsed, supported) {
			log.WithField("entry", name).Debug("skipping incompatible wheel")
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, model.Errorf(model.ErrCorruptArchive, "duplicate archive entry %q", name)
		}
		seen[name] = struct{}{}
		if f.UncompressedSize64 > uint64(limit) {
			return nil, model.Errorf(model.ErrCorruptArchive, "archive entry %q declares %d bytes, limit is %d", name, f.UncompressedSize64, limit)
		}
		selected = append(selected, selection{entry: f, name: name, parsed: parsed})
	}

	if len(selected) == 0 {
		return nil, model.Errorf(model.ErrNoCompatibleArtifact, "archive has no wheel compatible with this interpreter")
	}

	if err := verifySelected(selected, sidecarEntries, limit, opts.Policy); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(selected))
	for i := range selected {
		sel := &selected[i]
		dest := filepath.Join(destDir, sel.name)
		n, err := writeEntry(sel.entry, dest, limit)
		if err != nil {
			removeWritten(files)
			return nil, err
		}
		files = append(files, File{Wheel: sel.parsed, Name: sel.name, Path: dest, Size: n, Verified: sel.verified})
		log.WithFields(logrus.Fields{"wheel": sel.name, "size": verify.FormatSize(n)}).Debug("extracted wheel")
	}
	log.WithField("wheels", len(files)).Info("extracted compatible wheels")
	return files, nil
}

// unsafeName rejects anything that is not a plain file name in destDir.
func unsafeName(name string) bool {
	return strings.ContainsAny(name, "/\\:\x00") || strings.Contains(name, "..")
}

func verifySelected(selected []selection, sidecarEntries []*zip.File, limit int64, policy verify.Policy) error {
	if len(sidecarEntries) == 0 && policy.PublicKey == nil && !policy.RequireSignature {
		return nil
	}
	sidecars := make(verify.Sidecars, len(sidecarEntries))
	for _, f := range sidecarEntries {
		data, err := readEntry(f, verify.MaxSidecarBytes)
		if err != nil {
			return err
		}
		sidecars[f.Name] = data
	}
	for i := range selected {
		content, err := readEntry(selected[i].entry, limit)
		if err != nil {
			return err
		}
		res, err := policy.Verify(selected[i].name, content, sidecars)
		if err != nil {
			return err
		}
		selected[i].verified = res
	}
	return nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, model.Wrap(model.ErrCorruptArchive, err, "open entry %q", f.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, model.Wrap(model.ErrCorruptArchive, err, "read entry %q", f.Name)
	}
	if int64(len(data)) > limit {
		return nil, model.Errorf(model.ErrCorruptArchive, "archive entry %q exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

func writeEntry(f *zip.File, dest string, limit int64) (n int64, err error) {
	rc, err := f.Open()
	if err != nil {
		return 0, model.Wrap(model.ErrCorruptArchive, err, "open entry %q", f.Name)
	}
	defer rc.Close()

	// #nosec G304 -- dest is destDir joined with a validated plain file name
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, model.Wrap(model.ErrIO, err, "create %s", dest)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = model.Wrap(model.ErrIO, cerr, "close %s", dest)
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	n, err = io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			return n, model.Wrap(model.ErrIO, err, "write %s", dest)
		}
		return n, model.Wrap(model.ErrCorruptArchive, err, "read entry %q", f.Name)
	}
	if n > limit {
		return n, model.Errorf(model.ErrCorruptArchive, "archive entry %q exceeds %d bytes", f.Name, limit)
	}
	return n, nil
}

func removeWritten(files []File) {
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logrus.WithField("component", "extract").WithError(err).Warnf("could not remove %s", f.Path)
		}
	}
}

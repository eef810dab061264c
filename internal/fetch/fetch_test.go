package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/3leaps/wheelfetch/internal/extract"
	"github.com/3leaps/wheelfetch/internal/model"
	"github.com/3leaps/wheelfetch/internal/resolve"
	"github.com/3leaps/wheelfetch/internal/tags"
)

const artifactsURL = "https://api.example/repos/octo/proj/actions/runs/42/artifacts"

type fakeProvider struct {
	runs      []model.WorkflowRun
	artifacts []model.Artifact
	archive   []byte
	downloads int
}

func (f *fakeProvider) ListWorkflowRuns(context.Context, model.RunQuery) ([]model.WorkflowRun, error) {
	return f.runs, nil
}

func (f *fakeProvider) ListArtifacts(_ context.Context, url string) ([]model.Artifact, error) {
	if url != artifactsURL {
		return nil, model.Errorf(model.ErrNetwork, "GET %s: 404 Not Found", url)
	}
	return f.artifacts, nil
}

func (f *fakeProvider) Download(context.Context, string, int64) ([]byte, error) {
	f.downloads++
	return f.archive, nil
}

func zipOf(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		w.Write([]byte("contents of " + name))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func newProvider(t *testing.T, names ...string) *fakeProvider {
	return &fakeProvider{
		runs: []model.WorkflowRun{
			{ID: 41, Name: "Lint", HeadSHA: "abc", ArtifactsURL: "https://api.example/unused"},
			{ID: 42, Name: "Build", HeadSHA: "abc", ArtifactsURL: artifactsURL},
		},
		artifacts: []model.Artifact{{ID: 7, Name: "wheels", ArchiveDownloadURL: "https://api.example/zip"}},
		archive:   zipOf(t, names...),
	}
}

func newOrchestrator(p *fakeProvider) *Orchestrator {
	set := tags.NewSet(tags.New("py3", "none", "any"))
	return New(resolve.New(p), extract.New(p, set, 0, extract.Options{}))
}

func request() model.Request {
	return model.Request{
		RunQuery:     model.RunQuery{Owner: "octo", Repo: "proj", Branch: "main", HeadSHA: "abc", RunName: "Build"},
		ArtifactName: "wheels",
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	p := newProvider(t, "proj-1.0-py3-none-any.whl", "native-1.0-cp312-cp312-win_amd64.whl")
	dest := t.TempDir()
	res, err := newOrchestrator(p).Run(context.Background(), request(), dest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.ID != 42 || res.Artifact.ID != 7 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	paths := res.Paths()
	if len(paths) != 1 || paths[0] != filepath.Join(dest, "proj-1.0-py3-none-any.whl") {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestRunTagsStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*fakeProvider)
		kind   error
		stage  string
	}{
		{
			name:   "resolve",
			mutate: func(p *fakeProvider) { p.runs = p.runs[:1] },
			kind:   model.ErrRunNotFound,
			stage:  "(resolve)",
		},
		{
			name:   "locate",
			mutate: func(p *fakeProvider) { p.artifacts = nil },
			kind:   model.ErrArtifactNotFound,
			stage:  "(locate)",
		},
		{
			name:   "extract",
			mutate: func(p *fakeProvider) { p.archive = []byte("not a zip") },
			kind:   model.ErrCorruptArchive,
			stage:  "(extract)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newProvider(t, "proj-1.0-py3-none-any.whl")
			tc.mutate(p)
			_, err := newOrchestrator(p).Run(context.Background(), request(), t.TempDir())
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if !strings.Contains(err.Error(), tc.stage) {
				t.Fatalf("expected stage %s in %q", tc.stage, err.Error())
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	p := newProvider(t, "proj-1.0-py3-none-any.whl", "other-2.0-py2.py3-none-any.whl")
	o := newOrchestrator(p)
	first, err := o.Run(context.Background(), request(), t.TempDir())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := o.Run(context.Background(), request(), t.TempDir())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(first.Files) != len(second.Files) {
		t.Fatalf("file count differs: %d vs %d", len(first.Files), len(second.Files))
	}
	for i := range first.Files {
		a, err := os.ReadFile(first.Files[i].Path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		b, err := os.ReadFile(second.Files[i].Path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if first.Files[i].Name != second.Files[i].Name || !bytes.Equal(a, b) {
			t.Fatalf("run outputs differ at %d", i)
		}
	}
}

type recordingInstaller struct {
	paths   []string
	existed bool
	code    int
	err     error
}

func (r *recordingInstaller) Install(_ context.Context, paths []string) (int, error) {
	r.paths = paths
	r.existed = len(paths) > 0
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			r.existed = false
		}
	}
	return r.code, r.err
}

func TestInstallRemovesScratchDir(t *testing.T) {
	t.Parallel()

	p := newProvider(t, "proj-1.0-py3-none-any.whl")
	inst := &recordingInstaller{code: 2}
	code, err := newOrchestrator(p).Install(context.Background(), request(), inst)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if code != 2 {
		t.Fatalf("exit code: got %d want 2", code)
	}
	if !inst.existed || len(inst.paths) != 1 {
		t.Fatalf("installer should see extracted wheels: %+v", inst)
	}
	if !strings.HasPrefix(filepath.Base(filepath.Dir(inst.paths[0])), "wheelfetch-") {
		t.Fatalf("unexpected scratch dir %s", inst.paths[0])
	}
	if _, err := os.Stat(filepath.Dir(inst.paths[0])); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("scratch dir not removed: %v", err)
	}
}

func TestInstallErrors(t *testing.T) {
	t.Parallel()

	p := newProvider(t, "native-1.0-cp312-cp312-win_amd64.whl")
	inst := &recordingInstaller{}
	_, err := newOrchestrator(p).Install(context.Background(), request(), inst)
	if !errors.Is(err, model.ErrNoCompatibleArtifact) || !strings.Contains(err.Error(), "(extract)") {
		t.Fatalf("expected extract-stage no compatible artifact, got %v", err)
	}
	if inst.paths != nil {
		t.Fatalf("installer must not run")
	}

	p = newProvider(t, "proj-1.0-py3-none-any.whl")
	inst = &recordingInstaller{err: errors.New("exec: python3: not found")}
	_, err = newOrchestrator(p).Install(context.Background(), request(), inst)
	if !errors.Is(err, model.ErrInstall) || !strings.Contains(err.Error(), "(install)") {
		t.Fatalf("expected install-stage error, got %v", err)
	}

	p = newProvider(t, "proj-1.0-py3-none-any.whl")
	p.artifacts = nil
	_, err = newOrchestrator(p).Install(context.Background(), request(), &recordingInstaller{})
	if !errors.Is(err, model.ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found, got %v", err)
	}
	if p.downloads != 0 {
		t.Fatalf("nothing should be downloaded before the artifact is located")
	}
}

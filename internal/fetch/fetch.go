// Package fetch sequences run resolution, artifact lookup, extraction and
// installation.
package fetch

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/extract"
	"github.com/3leaps/wheelfetch/internal/install"
	"github.com/3leaps/wheelfetch/internal/model"
)

type RunResolver interface {
	ResolveRun(ctx context.Context, q model.RunQuery) (model.WorkflowRun, error)
	FindArtifact(ctx context.Context, run model.WorkflowRun, name string) (model.Artifact, error)
}

type ArchiveExtractor interface {
	FetchAndExtract(ctx context.Context, artifact model.Artifact, destDir string) ([]extract.File, error)
}

// Result describes one completed resolution.
type Result struct {
	Run      model.WorkflowRun `json:"run" yaml:"run"`
	Artifact model.Artifact    `json:"artifact" yaml:"artifact"`
	Files    []extract.File    `json:"files" yaml:"files"`
}

// Paths returns the extracted wheel paths in archive order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

type Orchestrator struct {
	resolver  RunResolver
	extractor ArchiveExtractor
	log       *logrus.Entry
}

func New(resolver RunResolver, extractor ArchiveExtractor) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		extractor: extractor,
		log:       logrus.WithField("component", "fetch"),
	}
}

func (o *Orchestrator) locate(ctx context.Context, req model.Request) (model.WorkflowRun, model.Artifact, error) {
	run, err := o.resolver.ResolveRun(ctx, req.RunQuery)
	if err != nil {
		return model.WorkflowRun{}, model.Artifact{}, model.WithStage(err, model.StageResolve, model.ErrNetwork)
	}
	o.log.WithFields(logrus.Fields{"run_id": run.ID, "run": run.Name, "url": run.HTMLURL}).Info("resolved workflow run")

	artifact, err := o.resolver.FindArtifact(ctx, run, req.ArtifactName)
	if err != nil {
		return model.WorkflowRun{}, model.Artifact{}, model.WithStage(err, model.StageLocate, model.ErrNetwork)
	}
	o.log.WithFields(logrus.Fields{"artifact_id": artifact.ID, "artifact": artifact.Name}).Info("located artifact")
	return run, artifact, nil
}

func (o *Orchestrator) extract(ctx context.Context, artifact model.Artifact, destDir string) ([]extract.File, error) {
	files, err := o.extractor.FetchAndExtract(ctx, artifact, destDir)
	if err != nil {
		return nil, model.WithStage(err, model.StageExtract, model.ErrCorruptArchive)
	}
	return files, nil
}

// Run resolves req and extracts the compatible wheels into destDir.
func (o *Orchestrator) Run(ctx context.Context, req model.Request, destDir string) (Result, error) {
	run, artifact, err := o.locate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	files, err := o.extract(ctx, artifact, destDir)
	if err != nil {
		return Result{}, err
	}
	return Result{Run: run, Artifact: artifact, Files: files}, nil
}

// Install resolves req, extracts the wheels into a scratch directory and
// hands them to installer. It returns the installer's exit status. The
// scratch directory is removed before Install returns.
func (o *Orchestrator) Install(ctx context.Context, req model.Request, installer install.Installer) (int, error) {
	_, artifact, err := o.locate(ctx, req)
	if err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp("", "wheelfetch-*")
	if err != nil {
		return 0, model.WithStage(model.Wrap(model.ErrIO, err, "create scratch directory"), model.StageExtract, model.ErrIO)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			o.log.WithError(err).WithField("dir", dir).Warn("could not remove scratch directory")
		}
	}()

	files, err := o.extract(ctx, artifact, dir)
	if err != nil {
		return 0, err
	}
	result := Result{Files: files}

	code, err := installer.Install(ctx, result.Paths())
	if err != nil {
		return 0, model.WithStage(err, model.StageInstall, model.ErrInstall)
	}
	o.log.WithFields(logrus.Fields{"wheels": len(files), "exit_code": code}).Info("installer finished")
	return code, nil
}

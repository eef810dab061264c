// Package resolve maps a source revision to the CI run that built it and
// locates artifacts inside that run.
package resolve

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/model"
)

// Lister is the provider surface the resolver needs. *github.Client
// satisfies it.
type Lister interface {
	ListWorkflowRuns(ctx context.Context, q model.RunQuery) ([]model.WorkflowRun, error)
	ListArtifacts(ctx context.Context, artifactsURL string) ([]model.Artifact, error)
}

type Resolver struct {
	lister Lister
	log    *logrus.Entry
}

func New(lister Lister) *Resolver {
	return &Resolver{lister: lister, log: logrus.WithField("component", "resolve")}
}

// ResolveRun returns the first run, in provider order, that was triggered by
// a push of q.HeadSHA and whose display name equals q.RunName exactly.
func (r *Resolver) ResolveRun(ctx context.Context, q model.RunQuery) (model.WorkflowRun, error) {
	runs, err := r.lister.ListWorkflowRuns(ctx, q)
	if err != nil {
		return model.WorkflowRun{}, err
	}

	// The provider filter is advisory; re-check the revision locally.
	matching := runs[:0:0]
	for _, run := range runs {
		if run.HeadSHA == q.HeadSHA {
			matching = append(matching, run)
		}
	}
	if len(matching) == 0 {
		return model.WorkflowRun{}, model.Errorf(model.ErrRunNotFound,
			"no push run for revision %s on %s in %s/%s", q.HeadSHA, q.Branch, q.Owner, q.Repo)
	}

	for _, run := range matching {
		if run.Name == q.RunName {
			r.log.WithFields(logrus.Fields{
				"run_id":     run.ID,
				"status":     run.Status,
				"conclusion": run.Conclusion,
			}).Debug("resolved workflow run")
			return run, nil
		}
	}
	return model.WorkflowRun{}, model.Errorf(model.ErrRunNotFound,
		"no run named %q for revision %s (%d runs checked)", q.RunName, q.HeadSHA, len(matching))
}

// FindArtifact returns the first artifact of run called name.
func (r *Resolver) FindArtifact(ctx context.Context, run model.WorkflowRun, name string) (model.Artifact, error) {
	artifacts, err := r.lister.ListArtifacts(ctx, run.ArtifactsURL)
	if err != nil {
		return model.Artifact{}, err
	}
	for _, a := range artifacts {
		if a.Name != name {
			continue
		}
		if a.Expired {
			r.log.WithFields(logrus.Fields{"artifact": a.Name, "run_id": run.ID}).Warn("artifact is marked expired; download will likely fail")
		}
		return a, nil
	}
	return model.Artifact{}, model.Errorf(model.ErrArtifactNotFound, "no artifact named %q in run %d", name, run.ID)
}

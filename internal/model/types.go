package model

// WorkflowRun is the subset of the GitHub workflow run payload that wheelfetch uses.
type WorkflowRun struct {
	ID           int64  `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	HeadSHA      string `json:"head_sha" yaml:"head_sha"`
	HeadBranch   string `json:"head_branch" yaml:"head_branch"`
	Event        string `json:"event" yaml:"event"`
	Status       string `json:"status" yaml:"status"`
	Conclusion   string `json:"conclusion" yaml:"conclusion"`
	ArtifactsURL string `json:"artifacts_url" yaml:"artifacts_url"`
	HTMLURL      string `json:"html_url" yaml:"html_url"`
}

// WorkflowRunList is the envelope returned by the list-runs endpoint.
type WorkflowRunList struct {
	TotalCount   int           `json:"total_count" yaml:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs" yaml:"workflow_runs"`
}

// Artifact is the subset of the GitHub artifact payload that wheelfetch uses.
type Artifact struct {
	ID                 int64  `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	SizeInBytes        int64  `json:"size_in_bytes" yaml:"size_in_bytes"`
	ArchiveDownloadURL string `json:"archive_download_url" yaml:"archive_download_url"`
	Expired            bool   `json:"expired" yaml:"expired"`
}

// ArtifactList is the envelope returned by the list-artifacts endpoint.
type ArtifactList struct {
	TotalCount int        `json:"total_count" yaml:"total_count"`
	Artifacts  []Artifact `json:"artifacts" yaml:"artifacts"`
}

// RunQuery selects one workflow run.
type RunQuery struct {
	Owner   string
	Repo    string
	Branch  string // branch or tag the push event was recorded against
	HeadSHA string
	RunName string // exact display name of the workflow
}

// Request is everything the orchestrator needs for one resolution.
type Request struct {
	RunQuery
	ArtifactName string
}

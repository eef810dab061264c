package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/wheelfetch/internal/extract"
	"github.com/3leaps/wheelfetch/internal/fetch"
	"github.com/3leaps/wheelfetch/internal/model"
	"github.com/3leaps/wheelfetch/internal/tags"
	"github.com/3leaps/wheelfetch/internal/verify"
)

var outputFormats = []string{"text", "json", "yaml"}

func checkFormat(format string) error {
	for _, f := range outputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown output format %q: want one of %s", format, strings.Join(outputFormats, ", "))
}

// textReport is implemented by reports with a human-readable rendering.
type textReport interface {
	writeText(w io.Writer) error
}

func render(w io.Writer, format string, report textReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return report.writeText(w)
	}
}

type downloadReport struct {
	Repository string            `json:"repository" yaml:"repository"`
	Revision   string            `json:"revision" yaml:"revision"`
	Ref        string            `json:"ref" yaml:"ref"`
	Run        model.WorkflowRun `json:"run" yaml:"run"`
	Artifact   model.Artifact    `json:"artifact" yaml:"artifact"`
	Files      []extract.File    `json:"files" yaml:"files"`
}

func newDownloadReport(req model.Request, res fetch.Result) downloadReport {
	files := res.Files
	if files == nil {
		files = []extract.File{}
	}
	return downloadReport{
		Repository: req.Owner + "/" + req.Repo,
		Revision:   req.HeadSHA,
		Ref:        req.Branch,
		Run:        res.Run,
		Artifact:   res.Artifact,
		Files:      files,
	}
}

func (r downloadReport) writeText(w io.Writer) error {
	fmt.Fprintf(w, "run       %s #%d (%s)\n", r.Run.Name, r.Run.ID, r.Run.HTMLURL)
	fmt.Fprintf(w, "artifact  %s (%s)\n", r.Artifact.Name, verify.FormatSize(r.Artifact.SizeInBytes))
	for _, f := range r.Files {
		line := fmt.Sprintf("%s  %s", f.Path, verify.FormatSize(f.Size))
		var notes []string
		if f.Verified.Checksum != "" {
			notes = append(notes, fmt.Sprintf("checksum %s (%s)", f.Verified.Checksum, verify.DetectChecksumType(f.Verified.Checksum)))
		}
		if f.Verified.Signature != "" {
			notes = append(notes, "signature "+f.Verified.Signature)
		}
		if len(notes) > 0 {
			line += "  [" + strings.Join(notes, ", ") + "]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

type tagsReport struct {
	Tags []string `json:"tags" yaml:"tags"`
}

func newTagsReport(set *tags.Set) tagsReport {
	out := make([]string, 0, set.Len())
	for _, t := range set.Tags() {
		out = append(out, t.String())
	}
	return tagsReport{Tags: out}
}

func (r tagsReport) writeText(w io.Writer) error {
	for _, t := range r.Tags {
		if _, err := fmt.Fprintln(w, t); err != nil {
			return err
		}
	}
	return nil
}

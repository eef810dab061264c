package model

import (
	"errors"
	"fmt"
)

// Failure kinds. Every terminal error carries exactly one of these.
var (
	ErrRunNotFound          = errors.New("run_not_found")
	ErrArtifactNotFound     = errors.New("artifact_not_found")
	ErrCorruptArchive       = errors.New("corrupt_archive")
	ErrUnsafeEntryName      = errors.New("unsafe_entry_name")
	ErrInvalidFilename      = errors.New("invalid_filename")
	ErrNoCompatibleArtifact = errors.New("no_compatible_artifact")
	ErrNetwork              = errors.New("network_error")
	ErrVerificationFailed   = errors.New("verification_failed")
	ErrInstall              = errors.New("install_failed")
	ErrIO                   = errors.New("io_error")
)

// Stage names the orchestration step that produced an error.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageLocate  Stage = "locate"
	StageExtract Stage = "extract"
	StageInstall Stage = "install"
)

// Error is the single failure type surfaced by the fetch pipeline.
type Error struct {
	Kind  error
	Stage Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	head := e.Kind.Error()
	if e.Stage != "" {
		head = fmt.Sprintf("%s (%s)", head, e.Stage)
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", head, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", head, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", head, e.Err)
	}
	return head
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an untagged Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an untagged Error of the given kind around cause.
func Wrap(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// WithStage tags err with stage. Errors that already carry a stage keep it;
// foreign errors are classified as kind.
func WithStage(err error, stage Stage, kind error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Stage == "" {
			fe.Stage = stage
		}
		return fe
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf reports the failure kind carried by err, or nil.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return nil
}

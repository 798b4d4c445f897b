package crossboot

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates an invalid triple or an unsupported architecture
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingPredecessor indicates a required stage-1/stage-2 toolchain is absent
	ErrMissingPredecessor = errors.New("missing predecessor toolchain")

	// ErrFetch indicates source acquisition failed
	ErrFetch = errors.New("fetch failed")

	// ErrExtract indicates a source archive could not be unpacked
	ErrExtract = errors.New("extract failed")

	// ErrPatchConflict indicates a patch failed for a reason other than being already applied
	ErrPatchConflict = errors.New("patch conflict")

	// ErrStepFailure indicates a configure, build or install step failed
	ErrStepFailure = errors.New("step failed")

	// ErrLocked indicates another pipeline holds the prefix lock
	ErrLocked = errors.New("prefix is locked by another crossboot instance")
)

// ConfigurationError is fatal and never retried.
type ConfigurationError struct {
	Field string // Which input was rejected ("target", "host", ...)
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// MissingPredecessorError names the exact tool path that was expected.
type MissingPredecessorError struct {
	Stage BuildStage
	Tool  string
	Path  string
}

func (e *MissingPredecessorError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s prefix is not set", e.Stage, e.Tool)
	}
	return fmt.Sprintf("%s: %s not found or not executable at %s", e.Stage, e.Tool, e.Path)
}

func (e *MissingPredecessorError) Is(target error) bool { return target == ErrMissingPredecessor }

// FetchError wraps a failed download or lookup of a component source.
type FetchError struct {
	Component string
	URL       string
	Err       error
}

func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("fetch %s from %s: %v", e.Component, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Component, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ExtractError wraps a failure to unpack an archive.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

func (e *ExtractError) Is(target error) bool { return target == ErrExtract }

// PatchConflict is reported as a warning; the pipeline continues.
type PatchConflict struct {
	Patch string
	Dir   string
	Err   error
}

func (e *PatchConflict) Error() string {
	return fmt.Sprintf("patch %s does not apply to %s: %v", e.Patch, e.Dir, e.Err)
}

func (e *PatchConflict) Unwrap() error { return e.Err }

func (e *PatchConflict) Is(target error) bool { return target == ErrPatchConflict }

// StepFailure aborts the pipeline. Build directories are left in place.
type StepFailure struct {
	Component Component
	Step      Step
	Dir       string
	Log       string
	Err       error
}

func (e *StepFailure) Error() string {
	msg := fmt.Sprintf("%s %s failed in %s: %v", e.Component, e.Step, e.Dir, e.Err)
	if e.Log != "" {
		msg += fmt.Sprintf(" (log: %s)", e.Log)
	}
	return msg
}

func (e *StepFailure) Unwrap() error { return e.Err }

func (e *StepFailure) Is(target error) bool { return target == ErrStepFailure }

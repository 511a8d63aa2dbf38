// Package errors provides standardized error handling for the vaspflow
// system. It implements structured error types with proper wrapping and
// classification following Go 1.20+ error handling best practices.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// Workflow job errors
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFailed      = errors.New("job execution failed")
	ErrFlowCycle      = errors.New("workflow contains a dependency cycle")
	ErrOutputNotReady = errors.New("referenced job output is not available")

	// Calculator configuration errors
	ErrPresetNotFound      = errors.New("preset not found")
	ErrUnknownKpointScheme = errors.New("unsupported k-point generation scheme")
	ErrVdwKernelMissing    = errors.New("vdW kernel data path not configured")
	ErrInvalidParameter    = errors.New("invalid calculator parameter")
	ErrInvalidConfig       = errors.New("invalid configuration")

	// Structure and surface errors
	ErrUnknownAdsorbate      = errors.New("adsorbate not in the built-in molecule table")
	ErrUnknownAdsorptionMode = errors.New("unsupported adsorption mode")
	ErrConflictingOptions    = errors.New("conflicting options supplied")
	ErrSurfaceIndexOutside   = errors.New("surface index not present in structure")

	// Post-processing errors
	ErrMissingOutputFile = errors.New("required output file missing")
	ErrAnalysisFailed    = errors.New("population analysis failed")
)

// JobError represents an error from a specific workflow job
type JobError struct {
	JobID     string
	Operation string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: operation %s: %v", e.JobID, e.Operation, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// PresetError represents an error while resolving or parsing a preset file
type PresetError struct {
	Preset string
	Err    error
}

func (e *PresetError) Error() string {
	return fmt.Sprintf("preset %s: %v", e.Preset, e.Err)
}

func (e *PresetError) Unwrap() error {
	return e.Err
}

// AnalysisError represents an error from a post-processing analyzer run
type AnalysisError struct {
	Tool string
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s in %s: %v", e.Tool, e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to application configuration
type ConfigError struct {
	Component string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s.%s: %v", e.Component, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors
func WrapJobError(jobID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{JobID: jobID, Operation: operation, Err: err}
}

func WrapPresetError(preset string, err error) error {
	if err == nil {
		return nil
	}
	return &PresetError{Preset: preset, Err: err}
}

func WrapAnalysisError(tool, path string, err error) error {
	if err == nil {
		return nil
	}
	return &AnalysisError{Tool: tool, Path: path, Err: err}
}

func WrapConfigError(component, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Err: err}
}

// Error classification functions
func IsJobError(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}

func IsPresetError(err error) bool {
	var pe *PresetError
	return errors.As(err, &pe)
}

func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Specific error type checks
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownAdsorbate) ||
		errors.Is(err, ErrUnknownAdsorptionMode) ||
		errors.Is(err, ErrUnknownKpointScheme) ||
		errors.Is(err, ErrConflictingOptions) ||
		errors.Is(err, ErrSurfaceIndexOutside) ||
		errors.Is(err, ErrInvalidParameter)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrPresetNotFound) ||
		errors.Is(err, ErrMissingOutputFile)
}

// Error extraction helpers
func GetJobID(err error) (string, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.JobID, true
	}
	return "", false
}

// Standard library pass-throughs so callers only import this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func New(text string) error {
	return errors.New(text)
}

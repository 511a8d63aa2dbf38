package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobError(t *testing.T) {
	base := errors.New("vasp exited with status 1")
	err := WrapJobError("job-42", "run", base)

	assert.Equal(t, "job job-42: operation run: vasp exited with status 1", err.Error())
	assert.True(t, IsJobError(err))
	assert.True(t, errors.Is(err, base))

	jobID, ok := GetJobID(err)
	assert.True(t, ok)
	assert.Equal(t, "job-42", jobID)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, WrapJobError("id", "op", nil))
	assert.Nil(t, WrapPresetError("BulkSet", nil))
	assert.Nil(t, WrapAnalysisError("bader", "/scratch", nil))
	assert.Nil(t, WrapConfigError("vasp", "command", nil))
}

func TestPresetError(t *testing.T) {
	err := WrapPresetError("SlabSet", ErrPresetNotFound)

	assert.True(t, IsPresetError(err))
	assert.True(t, errors.Is(err, ErrPresetNotFound))
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "SlabSet")
}

func TestAnalysisError(t *testing.T) {
	err := WrapAnalysisError("chargemol", "/scratch/run1", fmt.Errorf("%w: CHGCAR", ErrMissingOutputFile))

	assert.True(t, IsAnalysisError(err))
	assert.True(t, errors.Is(err, ErrMissingOutputFile))
	assert.Contains(t, err.Error(), "chargemol")
	assert.Contains(t, err.Error(), "CHGCAR")
}

func TestConfigError_FieldFormatting(t *testing.T) {
	withField := WrapConfigError("vasp", "command", ErrInvalidConfig)
	assert.Equal(t, "config vasp.command: invalid configuration", withField.Error())

	withoutField := WrapConfigError("vasp", "", ErrInvalidConfig)
	assert.Equal(t, "config vasp: invalid configuration", withoutField.Error())
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(fmt.Errorf("resolving H3O: %w", ErrUnknownAdsorbate)))
	assert.True(t, IsInputError(ErrUnknownKpointScheme))
	assert.True(t, IsInputError(ErrConflictingOptions))
	assert.False(t, IsInputError(ErrJobFailed))
	assert.False(t, IsInputError(nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"nil error", nil, "", false},
		{"config error", WrapConfigError("vasp", "vdw", ErrVdwKernelMissing), CategoryConfiguration, false},
		{"input error", ErrUnknownAdsorbate, CategoryValidation, false},
		{"missing preset", WrapPresetError("x", ErrPresetNotFound), CategoryNotFound, false},
		{"job failure", WrapJobError("j", "run", ErrJobFailed), CategoryExecution, true},
		{"analysis failure", WrapAnalysisError("bader", "/x", ErrAnalysisFailed), CategoryAnalysis, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			if tt.err == nil {
				assert.Nil(t, classified)
				return
			}
			assert.Equal(t, tt.category, classified.Category)
			assert.Equal(t, tt.retryable, classified.Retryable)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapJobError("j", "run", ErrJobFailed)))
	assert.False(t, IsRetryable(ErrInvalidParameter))
	assert.False(t, IsRetryable(nil))
}

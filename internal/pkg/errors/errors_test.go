package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Wrapping(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("evaluate: %w", ProcessFailure("timed out after 5s").WithError(cause))

	assert.True(t, IsProcessFailure(err))
	assert.True(t, IsEvaluationFailure(err))
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Equal(t, CodeProcessFailure, GetCode(err))
	assert.Equal(t, http.StatusBadGateway, GetStatusCode(err))
	assert.Contains(t, err.Error(), "PROCESS_FAILURE: timed out after 5s")
}

func TestEvaluationFailureClasses(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"process failure", ProcessFailure("exit status 2"), true},
		{"output missing", OutputMissing("/tmp/out.txt"), true},
		{"output malformed", OutputMalformed("expected 3 rows, got 2"), true},
		{"failure limit", ConsecutiveFailureLimit(1, 40, 5), false},
		{"configuration", Configuration("no gradient"), false},
		{"cancelled", Cancelled("context canceled"), false},
		{"foreign", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsEvaluationFailure(tt.err))
		})
	}
}

func TestConsecutiveFailureLimit_Details(t *testing.T) {
	err := ConsecutiveFailureLimit(2, 17, 5)

	assert.True(t, IsConsecutiveFailureLimit(err))
	assert.Equal(t, "2", err.Details["chain"])
	assert.Equal(t, "17", err.Details["iteration"])
	assert.Equal(t, "5", err.Details["limit"])
	assert.Contains(t, err.Message, "chain 2 aborted at iteration 17")
}

func TestOutputMissing_RecordsPath(t *testing.T) {
	err := OutputMissing("/work/eval-1/output.txt")
	assert.Equal(t, "/work/eval-1/output.txt", err.Details["path"])
}

func TestGetAppError(t *testing.T) {
	assert.Nil(t, GetAppError(fmt.Errorf("plain")))
	assert.Equal(t, CodeInternal, GetCode(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(fmt.Errorf("plain")))

	appErr := GetAppError(fmt.Errorf("wrapped: %w", NotFound("run")))
	require.NotNil(t, appErr)
	assert.True(t, IsNotFound(appErr))
	assert.False(t, IsValidation(appErr))
}

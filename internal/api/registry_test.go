package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/relaycode/taskserver/internal/common/errors"
	"github.com/relaycode/taskserver/internal/task/models"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))

	task, err := r.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", task.SessionID)
	assert.Equal(t, models.TaskRunning, task.Status)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))

	err := r.Register("t1", "s1")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeAlreadyExists, appErr.Code)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegistry_UpdateProgress(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))

	r.UpdateProgress("t1", models.TaskProgress{Turns: 2, TokensUsed: 100})

	task, err := r.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, task.Progress.Turns)
}

func TestRegistry_UpdateProgressUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.UpdateProgress("missing", models.TaskProgress{})
	})
}

func TestRegistry_Complete_DerivesStatus(t *testing.T) {
	cases := []struct {
		name   string
		result models.TaskResult
		want   models.TaskStatus
	}{
		{"success", models.TaskResult{ExitCode: 0, Summary: "completed"}, models.TaskCompleted},
		{"failure", models.TaskResult{ExitCode: 1, Summary: "error"}, models.TaskFailed},
		{"interrupted", models.TaskResult{ExitCode: 1, Summary: "interrupted"}, models.TaskInterrupted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			require.NoError(t, r.Register("t1", "s1"))
			r.Complete("t1", &tc.result)

			task, err := r.Get("t1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, task.Status)
			assert.Equal(t, &tc.result, task.Result)
		})
	}
}

func TestRegistry_MarkInterrupted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))
	require.NoError(t, r.MarkInterrupted("t1"))

	task, err := r.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInterrupted, task.Status)
}

func TestRegistry_Complete_DoesNotDowngradeAPriorInterrupt(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))
	require.NoError(t, r.MarkInterrupted("t1"))

	// The executor's own terminal emit typically observes an interrupt as
	// a generic stream error, not summary="interrupted" — Complete must
	// not let that downgrade the status an interrupt caller already saw.
	r.Complete("t1", &models.TaskResult{ExitCode: 1, Errors: []string{"stream closed"}})

	task, err := r.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInterrupted, task.Status)
}

func TestRegistry_MarkInterruptedUnknown(t *testing.T) {
	r := NewRegistry()
	err := r.MarkInterrupted("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegistry_ActiveCount_CountsOnlyRunningTasks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))
	require.NoError(t, r.Register("t2", "s1"))
	require.NoError(t, r.Register("t3", "s1"))

	r.Complete("t1", &models.TaskResult{ExitCode: 0, Summary: "completed"})
	require.NoError(t, r.MarkInterrupted("t2"))

	assert.Equal(t, 1, r.ActiveCount())
}

func TestRegistry_SessionID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("t1", "s1"))

	id, err := r.SessionID("t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	_, err = r.SessionID("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

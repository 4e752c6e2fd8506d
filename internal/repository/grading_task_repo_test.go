package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gradewise/gradewise-api/internal/models"
)

func TestGradingTaskSingleFlightCreate(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	first := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 3}
	require.NoError(t, repo.Create(context.Background(), &first))
	require.Equal(t, models.GradingTaskStatusRunning, first.Status)

	second := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull}
	require.ErrorIs(t, repo.Create(context.Background(), &second), ErrTaskConflict)

	// Other assignments are unaffected.
	other := models.GradingTask{ID: uuid.NewString(), AssignmentID: 2, Scope: models.GradingTaskScopeFull}
	require.NoError(t, repo.Create(context.Background(), &other))
}

func TestGradingTaskCreateAfterCompletion(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	first := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 2}
	require.NoError(t, repo.Create(context.Background(), &first))
	require.NoError(t, repo.Complete(context.Background(), first.ID, models.GradingTaskStatusCompleted, "", 2, 0))

	second := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull}
	require.NoError(t, repo.Create(context.Background(), &second))
}

func TestGradingTaskFindActive(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	active, err := repo.FindActive(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, active)

	task := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeIndividual}
	require.NoError(t, repo.Create(context.Background(), &task))

	active, err = repo.FindActive(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, task.ID, active.ID)
	require.Equal(t, models.GradingTaskScopeIndividual, active.Scope)
}

func TestGradingTaskCompleteIsCompareAndSet(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	task := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 4}
	require.NoError(t, repo.Create(context.Background(), &task))

	require.NoError(t, repo.ForceFail(context.Background(), task.ID, "exceeded staleness threshold"))

	// The worker finishing after reclamation loses; the forced failure stands.
	err := repo.Complete(context.Background(), task.ID, models.GradingTaskStatusCompleted, "", 4, 0)
	require.ErrorIs(t, err, ErrStaleTransition)

	stored, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.GradingTaskStatusFailed, stored.Status)
	require.Equal(t, "exceeded staleness threshold", stored.Cause)
	require.NotNil(t, stored.CompletedAt)
}

func TestGradingTaskDoubleReclaim(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	task := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull}
	require.NoError(t, repo.Create(context.Background(), &task))

	require.NoError(t, repo.ForceFail(context.Background(), task.ID, "stale"))
	require.ErrorIs(t, repo.ForceFail(context.Background(), task.ID, "stale again"), ErrStaleTransition)
}

func TestGradingTaskTouchUpdatesProgress(t *testing.T) {
	repo := NewGradingTaskRepository(newTestDB(t))

	task := models.GradingTask{ID: uuid.NewString(), AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 5}
	require.NoError(t, repo.Create(context.Background(), &task))

	require.NoError(t, repo.Touch(context.Background(), task.ID, 5, 2, 1))

	stored, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Graded)
	require.Equal(t, 1, stored.Failed)
	require.Equal(t, models.GradingTaskStatusRunning, stored.Status)
}

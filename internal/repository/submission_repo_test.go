package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradewise/gradewise-api/internal/models"
)

func seedSubmission(t *testing.T, repo SubmissionRepository, assignmentID, studentID uint, status models.SubmissionStatus) models.Submission {
	t.Helper()

	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       status,
	}
	require.NoError(t, repo.Create(context.Background(), &submission))
	return submission
}

func TestTransitionStatusCompareAndSet(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusPending)

	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusPending, models.SubmissionStatusDownloaded, "")
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDownloaded, stored.Status)
}

func TestTransitionStatusLostRace(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusDownloaded)

	// The caller believes the row is still pending, but it moved on.
	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusPending, models.SubmissionStatusDownloaded, "")
	require.ErrorIs(t, err, ErrStaleTransition)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDownloaded, stored.Status)
}

func TestTransitionStatusRejectsInvalidEdge(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusPending)

	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusPending, models.SubmissionStatusGraded, "")
	require.ErrorIs(t, err, ErrStaleTransition)
}

func TestTransitionStatusTerminalNotSubmitted(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	status := models.NotSubmittedStatus("missing")
	submission := seedSubmission(t, repo, 1, 1, status)

	err := repo.TransitionStatus(context.Background(), submission.ID, status, models.SubmissionStatusDownloaded, "")
	require.ErrorIs(t, err, ErrStaleTransition)
}

func TestTransitionStatusRecordsCause(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusDownloaded)

	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusDownloaded, models.SubmissionStatusExtractionFailed, "artifact is not a JSON object")
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, "artifact is not a JSON object", stored.Cause)
}

func TestTransitionStatusRetriesFailedExtraction(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusExtractionFailed)

	// A second failed attempt replaces the cause in place.
	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusExtractionFailed, models.SubmissionStatusExtractionFailed, "artifact is not a JSON object")
	require.NoError(t, err)

	// A successful retry moves on and clears it.
	err = repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusExtractionFailed, models.SubmissionStatusTextExtracted, "")
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusTextExtracted, stored.Status)
	require.Empty(t, stored.Cause)
}

func TestRegradeReentersGradedState(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	submission := seedSubmission(t, repo, 1, 1, models.SubmissionStatusGraded)

	err := repo.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusGraded, models.SubmissionStatusGraded, "")
	require.NoError(t, err)
}

func TestListWithFilter(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	seedSubmission(t, repo, 1, 1, models.SubmissionStatusTextExtracted)
	seedSubmission(t, repo, 1, 2, models.SubmissionStatusPending)
	seedSubmission(t, repo, 2, 1, models.SubmissionStatusTextExtracted)

	assignmentID := uint(1)
	status := models.SubmissionStatusTextExtracted
	listed, err := repo.List(context.Background(), SubmissionFilter{AssignmentID: &assignmentID, Status: &status})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, uint(1), listed[0].StudentID)
}

func TestCountByStatusBuckets(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	seedSubmission(t, repo, 1, 1, models.SubmissionStatusPending)
	seedSubmission(t, repo, 1, 2, models.SubmissionStatusDownloaded)
	seedSubmission(t, repo, 1, 3, models.SubmissionStatusTextExtracted)
	seedSubmission(t, repo, 1, 4, models.SubmissionStatusGraded)
	seedSubmission(t, repo, 1, 5, models.SubmissionStatusExtractionFailed)
	seedSubmission(t, repo, 1, 6, models.SubmissionStatusGradingFailed)

	counts, err := repo.CountByStatus(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusCounts{Pending: 2, Extracted: 1, Graded: 1, Failed: 2}, counts)
}

func TestCountExtracted(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	seedSubmission(t, repo, 1, 1, models.SubmissionStatusTextExtracted)
	seedSubmission(t, repo, 1, 2, models.SubmissionStatusTextExtracted)
	seedSubmission(t, repo, 1, 3, models.SubmissionStatusPending)

	count, err := repo.CountExtracted(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/extract"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/repository"
)

// SyncSubmissions pulls the raw artifacts currently available from the
// external source and advances each submission to DOWNLOADED. The step is
// idempotent: an artifact that was already downloaded is a no-op, and
// students without work land in their terminal not-submitted state.
func (o *Orchestrator) SyncSubmissions(ctx context.Context, assignmentID uint) error {
	raws, err := o.src.Fetch(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("fetch submissions: %w", err)
	}

	for _, raw := range raws {
		if err := o.ingestOne(ctx, assignmentID, raw.StudentID, raw.Artifact, raw.Reason); err != nil {
			o.logger.Warn().Err(err).
				Uint("assignment_id", assignmentID).
				Uint("student_id", raw.StudentID).
				Msg("submission intake failed")
		}
	}

	return nil
}

func (o *Orchestrator) ingestOne(ctx context.Context, assignmentID, studentID uint, artifact []byte, reason string) error {
	submission, err := o.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		submission = models.Submission{
			AssignmentID: assignmentID,
			StudentID:    studentID,
			Status:       models.SubmissionStatusPending,
		}
		if err := o.submissions.Create(ctx, &submission); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if reason != "" {
		err := o.submissions.TransitionStatus(ctx, submission.ID,
			models.SubmissionStatusPending, models.NotSubmittedStatus(reason), reason)
		if errors.Is(err, repository.ErrStaleTransition) {
			// Already past pending or already terminal: nothing to record.
			return nil
		}
		return err
	}

	if submission.Status != models.SubmissionStatusPending {
		// Already downloaded (or further along): repeated triggers are no-ops.
		return nil
	}

	if err := o.artifacts.PutRawArtifact(ctx, submission.ID, artifact); err != nil {
		return err
	}

	return o.submissions.TransitionStatus(ctx, submission.ID,
		models.SubmissionStatusPending, models.SubmissionStatusDownloaded, "")
}

// ExtractTexts runs the text-extraction collaborator over every downloaded
// submission. A failing extraction marks that submission EXTRACTION_FAILED
// with its cause and never blocks siblings; re-invoking picks failed
// submissions up again, so a fixed artifact only needs another trigger.
// Enough extracted submissions auto-trigger a bulk grading run.
func (o *Orchestrator) ExtractTexts(ctx context.Context, assignmentID uint) error {
	for _, status := range []models.SubmissionStatus{
		models.SubmissionStatusDownloaded,
		models.SubmissionStatusExtractionFailed,
	} {
		status := status
		pending, err := o.submissions.List(ctx, repository.SubmissionFilter{
			AssignmentID: &assignmentID,
			Status:       &status,
		})
		if err != nil {
			return err
		}

		for _, submission := range pending {
			o.extractOne(ctx, submission)
		}
	}

	return o.maybeAutoTrigger(ctx, assignmentID)
}

func (o *Orchestrator) extractOne(ctx context.Context, submission models.Submission) {
	artifact, err := o.artifacts.GetRawArtifact(ctx, submission.ID)
	if err != nil {
		o.failExtraction(ctx, submission, fmt.Sprintf("artifact unavailable: %v", err))
		return
	}

	answers, err := o.extractor.Extract(ctx, artifact)
	if err != nil {
		var extractionErr *extract.ExtractionError
		cause := err.Error()
		if errors.As(err, &extractionErr) {
			cause = extractionErr.Reason
		}
		o.failExtraction(ctx, submission, cause)
		return
	}

	if err := o.artifacts.PutAnswers(ctx, submission.ID, answers); err != nil {
		o.failExtraction(ctx, submission, fmt.Sprintf("persist answers: %v", err))
		return
	}

	if err := o.submissions.TransitionStatus(ctx, submission.ID,
		submission.Status, models.SubmissionStatusTextExtracted, ""); err != nil {
		o.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("extraction transition lost")
	}
}

func (o *Orchestrator) failExtraction(ctx context.Context, submission models.Submission, cause string) {
	if err := o.submissions.TransitionStatus(ctx, submission.ID,
		submission.Status, models.SubmissionStatusExtractionFailed, cause); err != nil {
		o.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("extraction failure transition lost")
	}
}

// maybeAutoTrigger starts a bulk grading run once enough submissions are
// extracted, unless any task already covers the assignment. An active
// individual-scope task suppresses the auto run entirely.
func (o *Orchestrator) maybeAutoTrigger(ctx context.Context, assignmentID uint) error {
	extracted, err := o.submissions.CountExtracted(ctx, assignmentID)
	if err != nil {
		return err
	}

	if extracted < int64(o.autoTriggerMin) {
		return nil
	}

	_, err = o.startTask(ctx, assignmentID, models.GradingTaskScopeFull, nil, true)
	switch {
	case errors.Is(err, ErrIndividualTaskActive):
		return nil
	case err != nil:
		return err
	default:
		return nil
	}
}

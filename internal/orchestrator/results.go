package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/repository"
)

// SubmissionResult returns the persisted grade row and, when present, the
// per-question result document from the artifact store.
func (o *Orchestrator) SubmissionResult(ctx context.Context, submissionID uint) (models.GradeResult, json.RawMessage, error) {
	result, err := o.results.GetBySubmission(ctx, submissionID)
	if err != nil {
		return models.GradeResult{}, nil, err
	}

	payload, err := o.artifacts.GetResult(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrArtifactNotFound) {
			return result, nil, nil
		}
		return models.GradeResult{}, nil, err
	}

	return result, json.RawMessage(payload), nil
}

// OverrideGrade records a human final grade for a submission. The machine
// prediction is preserved; subsequent automatic passes never overwrite the
// override.
func (o *Orchestrator) OverrideGrade(ctx context.Context, submissionID uint, grade float64) error {
	if grade < 0 {
		return fmt.Errorf("grade must not be negative")
	}

	if err := o.results.SetFinalGrade(ctx, submissionID, grade); err != nil {
		return err
	}

	err := o.results.AppendHistory(ctx, &models.GradeHistory{
		SubmissionID: submissionID,
		Grade:        grade,
		Source:       "manual",
		GradedAt:     o.now(),
	})
	if err != nil {
		o.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("grade history append failed")
	}

	return nil
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gradewise/gradewise-api/internal/dto"
	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/grading"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/observability"
	"github.com/gradewise/gradewise-api/internal/repository"
)

// gradeSubmission runs the full scoring pipeline for one submission and
// reports whether it ended graded. Work on a submission is serialized through
// a per-submission lock; any failure lands on this submission's record alone.
func (o *Orchestrator) gradeSubmission(ctx context.Context, submission models.Submission, references map[string]evaluation.Reference) bool {
	unlock := o.locks.lock(submission.ID)
	defer unlock()

	start := o.now()
	logger := o.logger.With().Uint("submission_id", submission.ID).Logger()

	answers, err := o.artifacts.GetAnswers(ctx, submission.ID)
	if err != nil {
		o.failGrading(ctx, submission, fmt.Sprintf("load extracted answers: %v", err), start)
		return false
	}

	questionIDs := make([]string, 0, len(references))
	for questionID := range references {
		questionIDs = append(questionIDs, questionID)
	}
	sort.Strings(questionIDs)

	var (
		earned, possible float64
		needsReview      bool
		questionResults  []models.QuestionResult
	)
	resultDoc := make(map[string]dto.SubmissionResult, len(references))

	for _, questionID := range questionIDs {
		ref := references[questionID]
		answer := answers[questionID]

		structure, err := o.decomposer.Decompose(ctx, answer, &ref.Structure)
		if err != nil {
			o.failGrading(ctx, submission, fmt.Sprintf("decompose question %s: %v", questionID, err), start)
			return false
		}
		if err := o.artifacts.PutStructure(ctx, submission.ID, questionID, structure); err != nil {
			o.failGrading(ctx, submission, fmt.Sprintf("persist structure for question %s: %v", questionID, err), start)
			return false
		}

		candidate := evaluation.AnswerText{
			QuestionID: questionID,
			Text:       answer,
			MaxPoints:  ref.Answer.MaxPoints,
			Type:       ref.Answer.Type,
		}
		vector, aligned := o.scorer.Score(ctx, ref, candidate)
		if err := o.artifacts.PutScores(ctx, submission.ID, questionID, vector); err != nil {
			o.failGrading(ctx, submission, fmt.Sprintf("persist scores for question %s: %v", questionID, err), start)
			return false
		}

		prediction := o.predictor.Predict(ref.Answer.Type, vector, ref.Answer.Text, answer, ref.Answer.MaxPoints)

		maxPoints := ref.Answer.MaxPoints
		if maxPoints <= 0 {
			maxPoints = grading.DefaultMaxPoints
		}
		earned += prediction.Score
		possible += maxPoints
		needsReview = needsReview || prediction.NeedsReview

		scores, err := json.Marshal(vector)
		if err != nil {
			o.failGrading(ctx, submission, fmt.Sprintf("encode score vector for question %s: %v", questionID, err), start)
			return false
		}
		questionResults = append(questionResults, models.QuestionResult{
			QuestionID:  questionID,
			Score:       prediction.Score,
			MaxPoints:   maxPoints,
			Label:       prediction.Label,
			Feedback:    prediction.Feedback,
			Confidence:  prediction.Confidence,
			NeedsReview: prediction.NeedsReview,
			Scores:      scores,
		})
		resultDoc[questionID] = dto.NewSubmissionResult(answer, vector, aligned, prediction.Score)
	}

	overall := 0.0
	if possible > 0 {
		overall = earned / possible * 100
	}

	payload, err := json.Marshal(resultDoc)
	if err != nil {
		o.failGrading(ctx, submission, fmt.Sprintf("encode result document: %v", err), start)
		return false
	}
	if err := o.artifacts.PutResult(ctx, submission.ID, payload); err != nil {
		o.failGrading(ctx, submission, fmt.Sprintf("persist result document: %v", err), start)
		return false
	}

	result := models.GradeResult{
		SubmissionID:   submission.ID,
		PredictedGrade: overall,
		NeedsReview:    needsReview,
		ComputedAt:     o.now(),
		Questions:      questionResults,
	}
	if err := o.results.Upsert(ctx, &result); err != nil {
		o.failGrading(ctx, submission, fmt.Sprintf("persist grade result: %v", err), start)
		return false
	}
	if err := o.results.AppendHistory(ctx, &models.GradeHistory{
		SubmissionID: submission.ID,
		Grade:        overall,
		Source:       "auto",
		GradedAt:     o.now(),
	}); err != nil {
		logger.Warn().Err(err).Msg("grade history append failed")
	}

	if err := o.submissions.TransitionStatus(ctx, submission.ID, submission.Status, models.SubmissionStatusGraded, ""); err != nil {
		// The row moved under us; the other writer's state stands.
		logger.Warn().Err(err).Msg("submission moved during grading, transition skipped")
		observability.Submissions().WithLabelValues("lost_transition").Inc()
		return false
	}

	observability.Submissions().WithLabelValues("graded").Inc()
	observability.GradingDuration().WithLabelValues("graded").Observe(o.now().Sub(start).Seconds())
	logger.Info().
		Float64("predicted_grade", overall).
		Bool("needs_review", needsReview).
		Msg("submission graded")

	return true
}

// failGrading records the failure cause on the submission without touching
// any sibling. A lost compare-and-set means another writer already decided
// the state and is left alone.
func (o *Orchestrator) failGrading(ctx context.Context, submission models.Submission, cause string, start time.Time) {
	err := o.submissions.TransitionStatus(ctx, submission.ID, submission.Status, models.SubmissionStatusGradingFailed, cause)
	if err != nil && !errors.Is(err, repository.ErrStaleTransition) {
		o.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failure transition could not be recorded")
	}

	observability.Submissions().WithLabelValues("failed").Inc()
	observability.GradingDuration().WithLabelValues("failed").Observe(o.now().Sub(start).Seconds())
	o.logger.Warn().Uint("submission_id", submission.ID).Str("cause", cause).Msg("submission grading failed")
}

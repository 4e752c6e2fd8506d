package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/gradewise/gradewise-api/internal/dto"
	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/observability"
	"github.com/gradewise/gradewise-api/internal/repository"
)

// StartBulkGrading starts a full-assignment grading task. When a fresh task
// already covers the assignment the request merges into it and the existing
// task is returned; a stale task is forcibly failed first and replaced.
func (o *Orchestrator) StartBulkGrading(ctx context.Context, assignmentID uint) (models.GradingTask, error) {
	return o.startTask(ctx, assignmentID, models.GradingTaskScopeFull, nil, false)
}

// RegradeStudents starts an individual-scope task covering the given
// students. While it runs, auto-triggered bulk runs for the assignment are
// suppressed so the targeted re-grade cannot be superseded.
func (o *Orchestrator) RegradeStudents(ctx context.Context, assignmentID uint, studentIDs []uint) (models.GradingTask, error) {
	if len(studentIDs) == 0 {
		return models.GradingTask{}, fmt.Errorf("at least one student id is required")
	}

	return o.startTask(ctx, assignmentID, models.GradingTaskScopeIndividual, studentIDs, false)
}

// startTask is the single-flight gate. The check-then-create race is closed
// by the repository's transactional create; a second caller loses with
// ErrTaskConflict and merges into the winner.
func (o *Orchestrator) startTask(ctx context.Context, assignmentID uint, scope models.GradingTaskScope, studentIDs []uint, auto bool) (models.GradingTask, error) {
	active, err := o.tasks.FindActive(ctx, assignmentID)
	if err != nil {
		return models.GradingTask{}, err
	}

	if active != nil {
		if !active.IsStale(o.now(), o.staleness) {
			if active.Scope == models.GradingTaskScopeIndividual && (auto || scope == models.GradingTaskScopeFull) {
				return *active, ErrIndividualTaskActive
			}
			o.logger.Info().Str("task_id", active.ID).Msg("merging grading request into active task")
			return *active, nil
		}

		cause := fmt.Sprintf("task exceeded staleness threshold %s", o.staleness)
		if err := o.tasks.ForceFail(ctx, active.ID, cause); err != nil && !errors.Is(err, repository.ErrStaleTransition) {
			return models.GradingTask{}, err
		}
		observability.GradingTasks().WithLabelValues(string(active.Scope), "reclaimed").Inc()
		o.logger.Warn().Str("task_id", active.ID).Msg("stale grading task forcibly failed")
	}

	references, err := o.loadReferences(ctx, assignmentID)
	if err != nil {
		return models.GradingTask{}, err
	}

	submissions, err := o.gradableSubmissions(ctx, assignmentID, studentIDs)
	if err != nil {
		return models.GradingTask{}, err
	}
	if len(submissions) == 0 {
		return models.GradingTask{}, fmt.Errorf("no gradable submissions for assignment %d", assignmentID)
	}

	task := models.GradingTask{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Scope:        scope,
		Total:        len(submissions),
	}
	if len(studentIDs) > 0 {
		ids, err := encodeStudentIDs(studentIDs)
		if err != nil {
			return models.GradingTask{}, err
		}
		task.StudentIDs = ids
	}

	if err := o.tasks.Create(ctx, &task); err != nil {
		if errors.Is(err, repository.ErrTaskConflict) {
			if winner, findErr := o.tasks.FindActive(ctx, assignmentID); findErr == nil && winner != nil {
				return *winner, nil
			}
		}
		return models.GradingTask{}, err
	}

	go o.runTask(context.WithoutCancel(ctx), task, submissions, references)

	return task, nil
}

// runTask fans the batch out across a bounded worker group. Per-submission
// outcomes flow through a channel to this goroutine, which is the single
// writer of the task's progress counters. A submission failure is contained
// to its own record and never aborts the batch.
func (o *Orchestrator) runTask(ctx context.Context, task models.GradingTask, submissions []models.Submission, references map[string]evaluation.Reference) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)

	outcomes := make(chan bool)
	collectorDone := make(chan struct{})

	graded, failed := 0, 0
	go func() {
		defer close(collectorDone)
		for ok := range outcomes {
			if ok {
				graded++
			} else {
				failed++
			}
			if err := o.tasks.Touch(ctx, task.ID, task.Total, graded, failed); err != nil {
				o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("task progress update failed")
			}
		}
	}()

	for _, submission := range submissions {
		submission := submission
		group.Go(func() error {
			ok := o.gradeSubmission(groupCtx, submission, references)
			select {
			case outcomes <- ok:
			case <-groupCtx.Done():
			}
			return nil
		})
	}

	_ = group.Wait()
	close(outcomes)
	<-collectorDone

	status := models.GradingTaskStatusCompleted
	cause := ""
	if graded == 0 && failed > 0 {
		status = models.GradingTaskStatusFailed
		cause = "every submission in the batch failed"
	}

	if err := o.tasks.Complete(ctx, task.ID, status, cause, graded, failed); err != nil {
		// A reclaimer judged this task stale while it was finishing; the
		// forced failure stands.
		o.logger.Warn().Err(err).Str("task_id", task.ID).Msg("task completion lost to reclamation")
		return
	}

	observability.GradingTasks().WithLabelValues(string(task.Scope), string(status)).Inc()
	o.logger.Info().
		Str("task_id", task.ID).
		Int("graded", graded).
		Int("failed", failed).
		Msg("grading task finished")
}

func (o *Orchestrator) gradableSubmissions(ctx context.Context, assignmentID uint, studentIDs []uint) ([]models.Submission, error) {
	all, err := o.submissions.List(ctx, repository.SubmissionFilter{AssignmentID: &assignmentID})
	if err != nil {
		return nil, err
	}

	wanted := make(map[uint]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}

	var gradable []models.Submission
	for _, submission := range all {
		if len(studentIDs) > 0 && !wanted[submission.StudentID] {
			continue
		}
		if submission.IsGradable() {
			gradable = append(gradable, submission)
		}
	}

	return gradable, nil
}

// GradingStatus reports per-status submission counts and the active task, if
// any, for an assignment.
func (o *Orchestrator) GradingStatus(ctx context.Context, assignmentID uint) (dto.GradingStatusResponse, error) {
	counts, err := o.submissions.CountByStatus(ctx, assignmentID)
	if err != nil {
		return dto.GradingStatusResponse{}, err
	}

	response := dto.GradingStatusResponse{
		AssignmentID: assignmentID,
		Counts:       counts,
	}

	active, err := o.tasks.FindActive(ctx, assignmentID)
	if err != nil {
		return dto.GradingStatusResponse{}, err
	}
	if active != nil {
		taskResponse := dto.NewGradingTaskResponse(*active)
		response.ActiveTask = &taskResponse
	}

	return response, nil
}

func encodeStudentIDs(ids []uint) (datatypes.JSON, error) {
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(payload), nil
}

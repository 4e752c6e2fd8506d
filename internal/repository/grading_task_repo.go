package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/models"
)

// ErrTaskConflict indicates that a fresh non-terminal grading task already
// covers the assignment; the caller should merge into the existing task.
var ErrTaskConflict = errors.New("an active grading task already covers this assignment")

// GradingTaskRepository persists batch-grading tasks. Tasks live in the
// database rather than an in-memory registry so restarts do not lose
// in-flight task visibility; status changes use compare-and-set updates.
type GradingTaskRepository interface {
	GetByID(ctx context.Context, id string) (models.GradingTask, error)

	// FindActive returns the single running task for the assignment, if any.
	FindActive(ctx context.Context, assignmentID uint) (*models.GradingTask, error)

	// Create inserts a new running task, failing with ErrTaskConflict when a
	// running task already exists for the assignment.
	Create(ctx context.Context, task *models.GradingTask) error

	// Complete terminates a running task. The update applies only while the
	// task is still running; a reclaimed task stays failed.
	Complete(ctx context.Context, id string, status models.GradingTaskStatus, cause string, graded, failed int) error

	// ForceFail marks a stale running task failed. The compare-and-set guard
	// keeps two concurrent reclaimers from double-failing the row.
	ForceFail(ctx context.Context, id string, cause string) error

	// Touch advances UpdatedAt on a running task so active work is never
	// mistaken for a stale task.
	Touch(ctx context.Context, id string, total, graded, failed int) error
}

type gradingTaskRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGradingTaskRepository instantiates the repository.
func NewGradingTaskRepository(db *gorm.DB) GradingTaskRepository {
	return &gradingTaskRepository{db: db, now: time.Now}
}

func (r *gradingTaskRepository) GetByID(ctx context.Context, id string) (models.GradingTask, error) {
	var task models.GradingTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return models.GradingTask{}, err
	}

	return task, nil
}

func (r *gradingTaskRepository) FindActive(ctx context.Context, assignmentID uint) (*models.GradingTask, error) {
	var task models.GradingTask
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("status = ?", models.GradingTaskStatusRunning).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &task, nil
}

func (r *gradingTaskRepository) Create(ctx context.Context, task *models.GradingTask) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.GradingTask{}).
			Where("assignment_id = ?", task.AssignmentID).
			Where("status = ?", models.GradingTaskStatusRunning).
			Count(&count).Error; err != nil {
			return err
		}

		if count > 0 {
			return ErrTaskConflict
		}

		task.Status = models.GradingTaskStatusRunning
		return tx.Create(task).Error
	})
}

func (r *gradingTaskRepository) Complete(ctx context.Context, id string, status models.GradingTaskStatus, cause string, graded, failed int) error {
	completedAt := r.now()
	result := r.db.WithContext(ctx).
		Model(&models.GradingTask{}).
		Where("id = ?", id).
		Where("status = ?", models.GradingTaskStatusRunning).
		Updates(map[string]interface{}{
			"status":       status,
			"cause":        cause,
			"graded":       graded,
			"failed":       failed,
			"completed_at": &completedAt,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}

	return nil
}

func (r *gradingTaskRepository) ForceFail(ctx context.Context, id string, cause string) error {
	completedAt := r.now()
	result := r.db.WithContext(ctx).
		Model(&models.GradingTask{}).
		Where("id = ?", id).
		Where("status = ?", models.GradingTaskStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.GradingTaskStatusFailed,
			"cause":        cause,
			"completed_at": &completedAt,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}

	return nil
}

func (r *gradingTaskRepository) Touch(ctx context.Context, id string, total, graded, failed int) error {
	return r.db.WithContext(ctx).
		Model(&models.GradingTask{}).
		Where("id = ?", id).
		Where("status = ?", models.GradingTaskStatusRunning).
		Updates(map[string]interface{}{
			"total":      total,
			"graded":     graded,
			"failed":     failed,
			"updated_at": r.now(),
		}).Error
}

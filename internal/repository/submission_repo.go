package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/models"
)

// ErrStaleTransition indicates a status transition lost the optimistic
// concurrency check: the record's state changed under the caller.
var ErrStaleTransition = errors.New("submission state changed concurrently")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *models.SubmissionStatus
}

// StatusCounts aggregates submissions per lifecycle bucket for one
// assignment. Failures are always reported, never omitted.
type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Extracted int64 `json:"extracted"`
	Graded    int64 `json:"graded"`
	Failed    int64 `json:"failed"`
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error

	// TransitionStatus applies a compare-and-set status update: the write
	// succeeds only when the stored status still equals from. A lost race
	// returns ErrStaleTransition. Last-writer-wins is not acceptable here.
	TransitionStatus(ctx context.Context, id uint, from, to models.SubmissionStatus, cause string) error

	CountExtracted(ctx context.Context, assignmentID uint) (int64, error)
	CountByStatus(ctx context.Context, assignmentID uint) (StatusCounts, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("created_at ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) TransitionStatus(ctx context.Context, id uint, from, to models.SubmissionStatus, cause string) error {
	if !from.CanTransitionTo(to) {
		return ErrStaleTransition
	}

	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(map[string]interface{}{"status": to, "cause": cause})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}

	return nil
}

func (r *submissionRepository) CountExtracted(ctx context.Context, assignmentID uint) (int64, error) {
	var count int64
	err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("status = ?", models.SubmissionStatusTextExtracted).
		Count(&count).Error

	return count, err
}

func (r *submissionRepository) CountByStatus(ctx context.Context, assignmentID uint) (StatusCounts, error) {
	var counts StatusCounts

	type row struct {
		Status models.SubmissionStatus
		Total  int64
	}

	var rows []row
	if err := r.baseQuery(ctx).
		Select("status, COUNT(*) AS total").
		Where("assignment_id = ?", assignmentID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	for _, entry := range rows {
		switch entry.Status {
		case models.SubmissionStatusPending, models.SubmissionStatusDownloaded:
			counts.Pending += entry.Total
		case models.SubmissionStatusTextExtracted:
			counts.Extracted += entry.Total
		case models.SubmissionStatusGraded:
			counts.Graded += entry.Total
		case models.SubmissionStatusExtractionFailed, models.SubmissionStatusGradingFailed:
			counts.Failed += entry.Total
		}
	}

	return counts, nil
}

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/models"
)

// GradeResultRepository persists grading outcomes. Upsert replaces the
// machine prediction wholesale on re-grading but preserves any human
// override and appends to history instead of resetting it.
type GradeResultRepository interface {
	GetBySubmission(ctx context.Context, submissionID uint) (models.GradeResult, error)
	Upsert(ctx context.Context, result *models.GradeResult) error
	SetFinalGrade(ctx context.Context, submissionID uint, grade float64) error
	AppendHistory(ctx context.Context, history *models.GradeHistory) error
}

type gradeResultRepository struct {
	db *gorm.DB
}

// NewGradeResultRepository instantiates the repository.
func NewGradeResultRepository(db *gorm.DB) GradeResultRepository {
	return &gradeResultRepository{db: db}
}

func (r *gradeResultRepository) GetBySubmission(ctx context.Context, submissionID uint) (models.GradeResult, error) {
	var result models.GradeResult
	if err := r.db.WithContext(ctx).
		Preload("Questions").
		Where("submission_id = ?", submissionID).
		First(&result).Error; err != nil {
		return models.GradeResult{}, err
	}

	return result, nil
}

func (r *gradeResultRepository) Upsert(ctx context.Context, result *models.GradeResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.GradeResult
		err := tx.Where("submission_id = ?", result.SubmissionID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(result).Error
		case err != nil:
			return err
		}

		// Carry the human override across re-grades.
		result.ID = existing.ID
		result.FinalGrade = existing.FinalGrade

		if err := tx.Where("grade_result_id = ?", existing.ID).Delete(&models.QuestionResult{}).Error; err != nil {
			return err
		}
		for i := range result.Questions {
			result.Questions[i].GradeResultID = existing.ID
		}

		return tx.Save(result).Error
	})
}

func (r *gradeResultRepository) SetFinalGrade(ctx context.Context, submissionID uint, grade float64) error {
	result := r.db.WithContext(ctx).
		Model(&models.GradeResult{}).
		Where("submission_id = ?", submissionID).
		Update("final_grade", grade)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *gradeResultRepository) AppendHistory(ctx context.Context, history *models.GradeHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

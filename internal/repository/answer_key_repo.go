package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/models"
)

// AnswerKeyRepository persists answer-key versions and their processed
// reference structures.
type AnswerKeyRepository interface {
	// GetCurrent returns the highest published version for the assignment.
	GetCurrent(ctx context.Context, assignmentID uint) (models.AnswerKey, error)
	Create(ctx context.Context, key *models.AnswerKey) error

	// SaveQuestionReference stores the processed reference JSON for one
	// question. References are written once at publish time and read-only
	// afterwards.
	SaveQuestionReference(ctx context.Context, questionRowID uint, reference []byte) error
}

type answerKeyRepository struct {
	db *gorm.DB
}

// NewAnswerKeyRepository instantiates the repository.
func NewAnswerKeyRepository(db *gorm.DB) AnswerKeyRepository {
	return &answerKeyRepository{db: db}
}

func (r *answerKeyRepository) GetCurrent(ctx context.Context, assignmentID uint) (models.AnswerKey, error) {
	var key models.AnswerKey
	if err := r.db.WithContext(ctx).
		Preload("Questions").
		Where("assignment_id = ?", assignmentID).
		Order("version DESC").
		First(&key).Error; err != nil {
		return models.AnswerKey{}, err
	}

	return key, nil
}

func (r *answerKeyRepository) Create(ctx context.Context, key *models.AnswerKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int64
		if err := tx.Model(&models.AnswerKey{}).
			Where("assignment_id = ?", key.AssignmentID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}

		key.Version = int(maxVersion) + 1
		return tx.Create(key).Error
	})
}

func (r *answerKeyRepository) SaveQuestionReference(ctx context.Context, questionRowID uint, reference []byte) error {
	return r.db.WithContext(ctx).
		Model(&models.AnswerKeyQuestion{}).
		Where("id = ?", questionRowID).
		Update("reference", reference).Error
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerKey is one published version of an assignment's reference answers.
// Once published, its processed structures (with cached embeddings) are
// read-only and shared by every concurrent grading pass.
type AnswerKey struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	AssignmentID uint                `gorm:"not null;index" json:"assignment_id"`
	Version      int                 `gorm:"not null" json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	Questions    []AnswerKeyQuestion `gorm:"constraint:OnDelete:CASCADE" json:"questions"`
}

// AnswerKeyQuestion is one reference answer within an answer key. Reference
// holds the processed evaluation.Reference JSON: the component structure,
// the per-component embeddings, the full-text embedding and the labels that
// require qualitative evaluation.
type AnswerKeyQuestion struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AnswerKeyID uint           `gorm:"not null;index" json:"answer_key_id"`
	QuestionID  string         `gorm:"size:64;not null" json:"question_id"`
	Question    string         `gorm:"type:text" json:"question"`
	Answer      string         `gorm:"type:text;not null" json:"answer"`
	Points      float64        `json:"points"`
	Type        string         `gorm:"size:32" json:"type"`
	Reference   datatypes.JSON `json:"reference,omitempty"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradeResult is the grading outcome for one submission. PredictedGrade is
// machine-produced; FinalGrade is set only by a human override and never
// invalidates the prediction. Re-grading overwrites the row in place while
// history rows accumulate.
type GradeResult struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	SubmissionID   uint             `gorm:"not null;uniqueIndex" json:"submission_id"`
	PredictedGrade float64          `json:"predicted_grade"`
	FinalGrade     *float64         `json:"final_grade"`
	NeedsReview    bool             `json:"needs_review"`
	ComputedAt     time.Time        `json:"computed_at"`
	Questions      []QuestionResult `gorm:"constraint:OnDelete:CASCADE" json:"questions"`
}

// EffectiveGrade returns the human override when present, otherwise the
// predicted grade.
func (r GradeResult) EffectiveGrade() float64 {
	if r.FinalGrade != nil {
		return *r.FinalGrade
	}

	return r.PredictedGrade
}

// QuestionResult is the per-question slice of a GradeResult. Scores holds the
// serialized ScoreVector for the question.
type QuestionResult struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	GradeResultID uint           `gorm:"not null;index" json:"grade_result_id"`
	QuestionID    string         `gorm:"size:64;not null" json:"question_id"`
	Score         float64        `json:"score"`
	MaxPoints     float64        `json:"max_points"`
	Label         string         `gorm:"size:32" json:"label"`
	Feedback      string         `gorm:"type:text" json:"feedback"`
	Confidence    float64        `json:"confidence"`
	NeedsReview   bool           `json:"needs_review"`
	Scores        datatypes.JSON `json:"scores,omitempty"`
}

// GradeHistory records every grading pass applied to a submission, manual or
// automatic, for audit.
type GradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Grade        float64   `json:"grade"`
	Source       string    `gorm:"size:32" json:"source"`
	GradedAt     time.Time `json:"graded_at"`
}

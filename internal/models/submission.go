package models

import (
	"strings"
	"time"
)

// SubmissionStatus is the lifecycle state of one (assignment, student)
// submission. Transitions are applied only through compare-and-set updates
// that verify the prior state.
type SubmissionStatus string

const (
	// SubmissionStatusPending means the submission was discovered but its
	// artifact has not been downloaded yet.
	SubmissionStatusPending SubmissionStatus = "pending"
	// SubmissionStatusDownloaded means the raw artifact is available locally.
	SubmissionStatusDownloaded SubmissionStatus = "downloaded"
	// SubmissionStatusTextExtracted means answer text was extracted and the
	// submission is ready for grading.
	SubmissionStatusTextExtracted SubmissionStatus = "text_extracted"
	// SubmissionStatusGraded means a grading pass completed. Re-grading
	// re-enters this state without resetting history.
	SubmissionStatusGraded SubmissionStatus = "graded"
	// SubmissionStatusExtractionFailed records a text-extraction failure.
	SubmissionStatusExtractionFailed SubmissionStatus = "extraction_failed"
	// SubmissionStatusGradingFailed records a grading-pipeline failure.
	SubmissionStatusGradingFailed SubmissionStatus = "grading_failed"

	notSubmittedPrefix = "not_submitted_"
)

// NotSubmittedStatus builds the terminal status for a student that never
// produced work, annotated with the reason.
func NotSubmittedStatus(reason string) SubmissionStatus {
	reason = strings.TrimSpace(strings.ToLower(reason))
	if reason == "" {
		reason = "unknown"
	}

	return SubmissionStatus(notSubmittedPrefix + strings.ReplaceAll(reason, " ", "_"))
}

// IsNotSubmitted reports whether the status is a terminal not-submitted state.
func (s SubmissionStatus) IsNotSubmitted() bool {
	return strings.HasPrefix(string(s), notSubmittedPrefix)
}

// IsTerminal reports whether no further transition may leave this status.
// Failure states are retryable and therefore not terminal.
func (s SubmissionStatus) IsTerminal() bool {
	return s.IsNotSubmitted()
}

// CanTransitionTo validates a transition against the state machine. Failed
// states may re-enter their producing step; graded submissions may be
// re-graded.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsNotSubmitted() {
		return s == SubmissionStatusPending
	}

	switch next {
	case SubmissionStatusDownloaded:
		return s == SubmissionStatusPending || s == SubmissionStatusDownloaded
	case SubmissionStatusTextExtracted:
		return s == SubmissionStatusDownloaded || s == SubmissionStatusExtractionFailed
	case SubmissionStatusExtractionFailed:
		return s == SubmissionStatusDownloaded || s == SubmissionStatusExtractionFailed
	case SubmissionStatusGraded, SubmissionStatusGradingFailed:
		return s == SubmissionStatusTextExtracted || s == SubmissionStatusGraded || s == SubmissionStatusGradingFailed
	default:
		return false
	}
}

// Submission is one student's work on one assignment. Records are created on
// discovery, mutated only via orchestrator state transitions and never
// deleted: failed states are retained for audit and retry.
type Submission struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	AssignmentID uint             `gorm:"not null;uniqueIndex:idx_assignment_student" json:"assignment_id"`
	StudentID    uint             `gorm:"not null;uniqueIndex:idx_assignment_student" json:"student_id"`
	ArtifactURL  string           `gorm:"size:512" json:"artifact_url"`
	Status       SubmissionStatus `gorm:"size:64;not null" json:"status"`
	Cause        string           `gorm:"type:text" json:"cause,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Assignment   Assignment       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student      Student          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// IsGraded reports whether the submission currently holds a grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// IsGradable reports whether the submission is ready for a grading pass.
func (s Submission) IsGradable() bool {
	return s.Status == SubmissionStatusTextExtracted ||
		s.Status == SubmissionStatusGraded ||
		s.Status == SubmissionStatusGradingFailed
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingTaskStatus is the lifecycle state of a batch grading run.
type GradingTaskStatus string

const (
	// GradingTaskStatusRunning marks the single active task per assignment.
	GradingTaskStatusRunning GradingTaskStatus = "running"
	// GradingTaskStatusCompleted marks a finished run.
	GradingTaskStatusCompleted GradingTaskStatus = "completed"
	// GradingTaskStatusFailed marks an aborted or forcibly reclaimed run.
	GradingTaskStatusFailed GradingTaskStatus = "failed"
)

// IsTerminal reports whether the task will make no further progress.
func (s GradingTaskStatus) IsTerminal() bool {
	return s == GradingTaskStatusCompleted || s == GradingTaskStatusFailed
}

// GradingTaskScope distinguishes a full-assignment run from a targeted
// re-grade of specific students.
type GradingTaskScope string

const (
	// GradingTaskScopeFull covers every gradable submission of the assignment.
	GradingTaskScopeFull GradingTaskScope = "full"
	// GradingTaskScopeIndividual covers an explicit student set; while one is
	// active, auto-triggered bulk runs for the assignment are suppressed.
	GradingTaskScopeIndividual GradingTaskScope = "individual"
)

// GradingTask represents one batch-grading run scoped to an assignment. At
// most one non-terminal task may exist per assignment; the invariant is
// enforced through compare-and-set creation. Task rows are persisted so
// restarts do not lose in-flight task visibility.
type GradingTask struct {
	ID           string            `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID uint              `gorm:"not null;index" json:"assignment_id"`
	Scope        GradingTaskScope  `gorm:"size:16;not null" json:"scope"`
	StudentIDs   datatypes.JSON    `json:"student_ids,omitempty"`
	Status       GradingTaskStatus `gorm:"size:16;not null;index" json:"status"`
	Cause        string            `gorm:"type:text" json:"cause,omitempty"`
	Total        int               `json:"total"`
	Graded       int               `json:"graded"`
	Failed       int               `json:"failed"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// IsStale reports whether a running task has outlived the staleness
// threshold and may be forcibly failed by the next single-flight check.
func (t GradingTask) IsStale(now time.Time, threshold time.Duration) bool {
	return t.Status == GradingTaskStatusRunning && now.Sub(t.UpdatedAt) > threshold
}

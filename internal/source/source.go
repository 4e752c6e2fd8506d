// Package source defines the boundary to the external submission origin
// (a classroom platform or equivalent) that produces raw artifacts.
package source

import (
	"context"
	"fmt"
	"sync"
)

// RawSubmission is one downloadable artifact for a student on an assignment.
// An empty Artifact with a Reason means the student never produced work.
type RawSubmission struct {
	StudentID uint
	Artifact  []byte

	// Reason is set instead of Artifact for students who did not submit,
	// e.g. "missing" or "turned_in_late_window_closed".
	Reason string
}

// SubmissionSource lists the raw submissions currently available for an
// assignment. Repeated calls may return already-known artifacts; downstream
// handling is idempotent.
type SubmissionSource interface {
	Fetch(ctx context.Context, assignmentID uint) ([]RawSubmission, error)
}

// MemorySource is an in-process source used for local deployments and tests.
type MemorySource struct {
	mu          sync.RWMutex
	submissions map[uint][]RawSubmission
}

// NewMemorySource constructs an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{submissions: make(map[uint][]RawSubmission)}
}

// Put registers an artifact for the student on the assignment.
func (s *MemorySource) Put(assignmentID uint, submission RawSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[assignmentID] = append(s.submissions[assignmentID], submission)
}

// Fetch returns the registered artifacts.
func (s *MemorySource) Fetch(_ context.Context, assignmentID uint) ([]RawSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.submissions[assignmentID]
	if !ok {
		return nil, fmt.Errorf("no submissions registered for assignment %d", assignmentID)
	}

	out := make([]RawSubmission, len(list))
	copy(out, list)
	return out, nil
}

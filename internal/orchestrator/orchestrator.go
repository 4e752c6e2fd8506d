// Package orchestrator drives the per-submission grading lifecycle and
// coordinates batch grading tasks per assignment: single-flight task
// creation, lazy staleness reclamation, bounded-concurrency fan-out and
// bulkhead isolation between sibling submissions.
package orchestrator

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/extract"
	"github.com/gradewise/gradewise-api/internal/grading"
	"github.com/gradewise/gradewise-api/internal/repository"
	"github.com/gradewise/gradewise-api/internal/source"
)

// ErrIndividualTaskActive rejects a bulk run while a targeted re-grade task
// covers the same assignment: the scoped task must not be superseded.
var ErrIndividualTaskActive = errors.New("an individual grading task is active for this assignment")

// ErrAnswerKeyMissing aborts a batch before any submission work: nothing can
// be scored without a published reference.
var ErrAnswerKeyMissing = errors.New("no answer key published for this assignment")

// Options tune orchestration behavior. Zero values select the defaults.
type Options struct {
	// Concurrency bounds the per-task submission fan-out.
	Concurrency int
	// Staleness is the age after which a running task may be forcibly
	// reclaimed by the next single-flight check.
	Staleness time.Duration
	// AutoTriggerThreshold is the number of extracted submissions that
	// automatically starts a bulk run.
	AutoTriggerThreshold int
}

// Orchestrator owns submission state transitions and grading tasks. All
// shared mutable state lives behind compare-and-set repository updates; the
// published reference structures it hands to scorers are read-only.
type Orchestrator struct {
	submissions repository.SubmissionRepository
	tasks       repository.GradingTaskRepository
	keys        repository.AnswerKeyRepository
	results     repository.GradeResultRepository
	artifacts   repository.ArtifactStore

	src       source.SubmissionSource
	extractor extract.Extractor

	decomposer *evaluation.Decomposer
	scorer     *evaluation.Scorer
	predictor  *grading.Predictor

	concurrency    int
	staleness      time.Duration
	autoTriggerMin int

	locks  *keyedLocks
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the orchestrator.
func New(
	submissions repository.SubmissionRepository,
	tasks repository.GradingTaskRepository,
	keys repository.AnswerKeyRepository,
	results repository.GradeResultRepository,
	artifacts repository.ArtifactStore,
	src source.SubmissionSource,
	extractor extract.Extractor,
	decomposer *evaluation.Decomposer,
	scorer *evaluation.Scorer,
	predictor *grading.Predictor,
	opts Options,
	logger zerolog.Logger,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 30 * time.Minute
	}
	if opts.AutoTriggerThreshold <= 0 {
		opts.AutoTriggerThreshold = 1
	}

	return &Orchestrator{
		submissions:    submissions,
		tasks:          tasks,
		keys:           keys,
		results:        results,
		artifacts:      artifacts,
		src:            src,
		extractor:      extractor,
		decomposer:     decomposer,
		scorer:         scorer,
		predictor:      predictor,
		concurrency:    opts.Concurrency,
		staleness:      opts.Staleness,
		autoTriggerMin: opts.AutoTriggerThreshold,
		locks:          newKeyedLocks(),
		logger:         logger.With().Str("component", "orchestrator").Logger(),
		now:            time.Now,
	}
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/dto"
	"github.com/gradewise/gradewise-api/internal/embedding"
	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/extract"
	"github.com/gradewise/gradewise-api/internal/grading"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/repository"
	"github.com/gradewise/gradewise-api/internal/source"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type testEnv struct {
	db          *gorm.DB
	submissions repository.SubmissionRepository
	tasks       repository.GradingTaskRepository
	results     repository.GradeResultRepository
	artifacts   repository.ArtifactStore
	source      *source.MemorySource
	orch        *Orchestrator
}

// newTestEnv wires a fully offline orchestrator: sqlite-backed repositories,
// a miniredis artifact store, the deterministic decomposer fallback and the
// hashing embedder. Concurrency is 1 so sqlite never sees competing writers.
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Assignment{},
		&models.Submission{},
		&models.AnswerKey{},
		&models.AnswerKeyQuestion{},
		&models.GradingTask{},
		&models.GradeResult{},
		&models.QuestionResult{},
		&models.GradeHistory{},
	))

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	submissions := repository.NewSubmissionRepository(db)
	tasks := repository.NewGradingTaskRepository(db)
	keys := repository.NewAnswerKeyRepository(db)
	results := repository.NewGradeResultRepository(db)
	artifacts := repository.NewArtifactStore(redisClient)
	src := source.NewMemorySource()

	embedder := embedding.NewHashingEmbedder(0)
	decomposer := evaluation.NewDecomposer(nil, 0, testLogger())
	aligner := evaluation.NewAligner(nil, 0, testLogger())
	rubric := evaluation.NewRubricScorer(nil, testLogger())
	scorer := evaluation.NewScorer(embedder, aligner, rubric, testLogger())
	predictor := grading.NewPredictor(grading.NewWeightedClassifier(0.25, 0.45, 0.30), grading.Options{}, testLogger())

	opts.Concurrency = 1
	orch := New(submissions, tasks, keys, results, artifacts,
		src, extract.NewJSONExtractor(), decomposer, scorer, predictor, opts, testLogger())

	return &testEnv{
		db:          db,
		submissions: submissions,
		tasks:       tasks,
		results:     results,
		artifacts:   artifacts,
		source:      src,
		orch:        orch,
	}
}

func (env *testEnv) publishKey(t *testing.T, assignmentID uint) {
	t.Helper()

	points := 5.0
	_, err := env.orch.PublishAnswerKey(context.Background(), assignmentID, dto.AnswerKeyUploadRequest{
		"q1": {
			Question: "What is the capital of France?",
			Answer:   "Paris is the capital of France.\n\nThe French government and parliament sit in Paris.",
			Points:   &points,
		},
		"q2": {
			Question: "How many planets orbit the sun?",
			Answer:   "8",
			Points:   &points,
			Type:     string(evaluation.QuestionTypeNumeric),
		},
	})
	require.NoError(t, err)
}

// seedExtracted creates a submission that already passed extraction, with its
// answers in the artifact store.
func (env *testEnv) seedExtracted(t *testing.T, assignmentID, studentID uint, answers map[string]string) models.Submission {
	t.Helper()

	submission := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       models.SubmissionStatusTextExtracted,
	}
	require.NoError(t, env.submissions.Create(context.Background(), &submission))
	if answers != nil {
		require.NoError(t, env.artifacts.PutAnswers(context.Background(), submission.ID, answers))
	}
	return submission
}

func (env *testEnv) waitForTask(t *testing.T, id string) models.GradingTask {
	t.Helper()

	var task models.GradingTask
	require.Eventually(t, func() bool {
		got, err := env.tasks.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		task = got
		return task.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func referenceAnswers() map[string]string {
	return map[string]string{
		"q1": "Paris is the capital of France.\n\nThe French government and parliament sit in Paris.",
		"q2": "8",
	}
}

func TestPublishAnswerKeyProcessesReferences(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	points := 5.0
	processed, err := env.orch.PublishAnswerKey(context.Background(), 1, dto.AnswerKeyUploadRequest{
		"q1": {
			Question: "Define photosynthesis.",
			Answer:   "Photosynthesis converts light into chemical energy. For example, plants store it as glucose.",
			Points:   &points,
		},
	})
	require.NoError(t, err)
	require.Len(t, processed, 1)

	question := processed["q1"]
	require.NotEmpty(t, question.Structure)
	for label, component := range question.Structure {
		if component.Content == "" {
			continue
		}
		if containsString(question.RequiresLLMEvaluation, label) {
			require.Empty(t, component.Embedding, "qualitative component %q must not carry an embedding", label)
		} else {
			require.NotEmpty(t, component.Embedding, "component %q must carry a cached embedding", label)
		}
	}

	// Re-publishing creates the next immutable version.
	_, err = env.orch.PublishAnswerKey(context.Background(), 1, dto.AnswerKeyUploadRequest{
		"q1": {Answer: "A revised reference answer.", Points: &points},
	})
	require.NoError(t, err)

	var versions []int
	require.NoError(t, env.db.Model(&models.AnswerKey{}).Where("assignment_id = ?", 1).
		Order("version").Pluck("version", &versions).Error)
	require.Equal(t, []int{1, 2}, versions)
}

func TestPublishAnswerKeyRejectsEmptyAnswer(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	_, err := env.orch.PublishAnswerKey(context.Background(), 1, dto.AnswerKeyUploadRequest{
		"q1": {Answer: "   "},
	})
	require.Error(t, err)

	_, err = env.orch.PublishAnswerKey(context.Background(), 1, dto.AnswerKeyUploadRequest{})
	require.Error(t, err)
}

func TestSyncSubmissionsIngestsAndRecordsAbsence(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	env.source.Put(1, source.RawSubmission{StudentID: 10, Artifact: []byte(`{"q1": "an answer"}`)})
	env.source.Put(1, source.RawSubmission{StudentID: 11, Reason: "missing"})

	require.NoError(t, env.orch.SyncSubmissions(context.Background(), 1))

	downloaded, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDownloaded, downloaded.Status)

	artifact, err := env.artifacts.GetRawArtifact(context.Background(), downloaded.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"q1": "an answer"}`, string(artifact))

	absent, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, models.NotSubmittedStatus("missing"), absent.Status)
	require.True(t, absent.Status.IsNotSubmitted())

	// Syncing again is a no-op for both records.
	require.NoError(t, env.orch.SyncSubmissions(context.Background(), 1))
	again, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDownloaded, again.Status)
}

func TestExtractTextsIsolatesFailures(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	env.source.Put(1, source.RawSubmission{StudentID: 10, Artifact: []byte(`{"q1": "a fine answer"}`)})
	env.source.Put(1, source.RawSubmission{StudentID: 11, Artifact: []byte(`[1, 2, 3]`)})
	require.NoError(t, env.orch.SyncSubmissions(context.Background(), 1))

	require.NoError(t, env.orch.ExtractTexts(context.Background(), 1))

	good, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusTextExtracted, good.Status)

	answers, err := env.artifacts.GetAnswers(context.Background(), good.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"q1": "a fine answer"}, answers)

	bad, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusExtractionFailed, bad.Status)
	require.NotEmpty(t, bad.Cause)
}

func TestExtractTextsRetriesFailedSubmission(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	env.source.Put(1, source.RawSubmission{StudentID: 10, Artifact: []byte(`[broken`)})
	env.source.Put(1, source.RawSubmission{StudentID: 11, Artifact: []byte(`[still broken`)})
	require.NoError(t, env.orch.SyncSubmissions(context.Background(), 1))
	require.NoError(t, env.orch.ExtractTexts(context.Background(), 1))

	failed, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusExtractionFailed, failed.Status)

	// Replacing the broken artifact and triggering again recovers the
	// submission without any manual state surgery.
	corrected, err := json.Marshal(map[string]string{"q1": "a corrected answer"})
	require.NoError(t, err)
	require.NoError(t, env.artifacts.PutRawArtifact(context.Background(), failed.ID, corrected))

	require.NoError(t, env.orch.ExtractTexts(context.Background(), 1))

	recovered, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusTextExtracted, recovered.Status)
	require.Empty(t, recovered.Cause)

	answers, err := env.artifacts.GetAnswers(context.Background(), recovered.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"q1": "a corrected answer"}, answers)

	// A submission whose artifact is still broken fails again in place.
	stillFailed, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusExtractionFailed, stillFailed.Status)
	require.NotEmpty(t, stillFailed.Cause)
}

func TestExtractTextsAutoTriggersBulkRun(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 1})
	env.publishKey(t, 1)

	payload, err := json.Marshal(referenceAnswers())
	require.NoError(t, err)
	env.source.Put(1, source.RawSubmission{StudentID: 10, Artifact: payload})
	require.NoError(t, env.orch.SyncSubmissions(context.Background(), 1))
	require.NoError(t, env.orch.ExtractTexts(context.Background(), 1))

	require.Eventually(t, func() bool {
		submission, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 10)
		return err == nil && submission.Status == models.SubmissionStatusGraded
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartBulkGradingRequiresAnswerKey(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})
	env.seedExtracted(t, 1, 10, referenceAnswers())

	_, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.ErrorIs(t, err, ErrAnswerKeyMissing)
}

func TestStartBulkGradingGradesBatch(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})
	env.publishKey(t, 1)
	submission := env.seedExtracted(t, 1, 10, referenceAnswers())

	task, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.GradingTaskScopeFull, task.Scope)
	require.Equal(t, 1, task.Total)

	finished := env.waitForTask(t, task.ID)
	require.Equal(t, models.GradingTaskStatusCompleted, finished.Status)
	require.Equal(t, 1, finished.Graded)
	require.Equal(t, 0, finished.Failed)

	// A verbatim copy of the reference scores the full grade.
	result, doc, err := env.orch.SubmissionResult(context.Background(), submission.ID)
	require.NoError(t, err)
	require.InDelta(t, 100, result.PredictedGrade, 1)
	require.False(t, result.NeedsReview)
	require.Len(t, result.Questions, 2)
	require.NotEmpty(t, doc)

	status, err := env.orch.GradingStatus(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, status.Counts.Graded)
	require.Nil(t, status.ActiveTask)

	var history []models.GradeHistory
	require.NoError(t, env.db.Where("submission_id = ?", submission.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.Equal(t, "auto", history[0].Source)
}

func TestBulkGradingIsolatesSubmissionFailures(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})
	env.publishKey(t, 1)

	healthyA := env.seedExtracted(t, 1, 10, referenceAnswers())
	// No answers in the artifact store: grading this one must fail alone.
	broken := env.seedExtracted(t, 1, 11, nil)
	healthyB := env.seedExtracted(t, 1, 12, referenceAnswers())

	task, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 3, task.Total)

	finished := env.waitForTask(t, task.ID)
	require.Equal(t, models.GradingTaskStatusCompleted, finished.Status)
	require.Equal(t, 2, finished.Graded)
	require.Equal(t, 1, finished.Failed)

	for _, id := range []uint{healthyA.ID, healthyB.ID} {
		stored, err := env.submissions.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	}

	failed, err := env.submissions.GetByID(context.Background(), broken.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGradingFailed, failed.Status)
	require.NotEmpty(t, failed.Cause)
}

func TestBulkGradingScoresPartialAnswer(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	points := 5.0
	_, err := env.orch.PublishAnswerKey(context.Background(), 1, dto.AnswerKeyUploadRequest{
		"1": {
			Question: "What is the capital of France?",
			Answer:   "Paris is the capital of France.",
			Points:   &points,
		},
	})
	require.NoError(t, err)

	submission := env.seedExtracted(t, 1, 10, map[string]string{"1": "Paris"})

	task, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	finished := env.waitForTask(t, task.ID)
	require.Equal(t, models.GradingTaskStatusCompleted, finished.Status)

	result, _, err := env.orch.SubmissionResult(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, result.Questions, 1)

	// A one-word answer earns partial credit, never zero and never more
	// than the question is worth.
	question := result.Questions[0]
	require.Greater(t, question.Score, 0.0)
	require.LessOrEqual(t, question.Score, points)

	var vector evaluation.ScoreVector
	require.NoError(t, json.Unmarshal(question.Scores, &vector))
	require.Greater(t, vector.LexicalSimilarity, 0.0)
	require.Greater(t, vector.EmbeddingSimilarity, 0.0)
}

func TestStartBulkGradingMergesIntoActiveTask(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})

	active := models.GradingTask{ID: "task-1", AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 3}
	require.NoError(t, env.tasks.Create(context.Background(), &active))

	merged, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, active.ID, merged.ID)

	var count int64
	require.NoError(t, env.db.Model(&models.GradingTask{}).Where("assignment_id = ?", 1).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestActiveIndividualTaskSuppressesBulkRuns(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 1})
	env.publishKey(t, 1)
	env.seedExtracted(t, 1, 10, referenceAnswers())

	individual := models.GradingTask{ID: "task-1", AssignmentID: 1, Scope: models.GradingTaskScopeIndividual, Total: 1}
	require.NoError(t, env.tasks.Create(context.Background(), &individual))

	_, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.ErrorIs(t, err, ErrIndividualTaskActive)

	// The auto trigger backs off silently instead of superseding the task.
	require.NoError(t, env.orch.ExtractTexts(context.Background(), 1))
	found, err := env.tasks.FindActive(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, individual.ID, found.ID)

	// A targeted re-grade for the same assignment merges instead.
	merged, err := env.orch.RegradeStudents(context.Background(), 1, []uint{10})
	require.NoError(t, err)
	require.Equal(t, individual.ID, merged.ID)
}

func TestStaleTaskIsReclaimed(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100, Staleness: time.Minute})
	env.publishKey(t, 1)
	env.seedExtracted(t, 1, 10, referenceAnswers())

	stuck := models.GradingTask{ID: "stuck-task", AssignmentID: 1, Scope: models.GradingTaskScopeFull, Total: 1}
	require.NoError(t, env.tasks.Create(context.Background(), &stuck))
	require.NoError(t, env.db.Model(&models.GradingTask{}).Where("id = ?", stuck.ID).
		UpdateColumn("updated_at", time.Now().Add(-2*time.Minute)).Error)

	replacement, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	require.NotEqual(t, stuck.ID, replacement.ID)

	reclaimed, err := env.tasks.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	require.Equal(t, models.GradingTaskStatusFailed, reclaimed.Status)
	require.NotEmpty(t, reclaimed.Cause)

	finished := env.waitForTask(t, replacement.ID)
	require.Equal(t, models.GradingTaskStatusCompleted, finished.Status)
}

func TestRegradeStudentsScopesTheBatch(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})
	env.publishKey(t, 1)
	target := env.seedExtracted(t, 1, 10, referenceAnswers())
	env.seedExtracted(t, 1, 11, referenceAnswers())

	_, err := env.orch.RegradeStudents(context.Background(), 1, nil)
	require.Error(t, err)

	task, err := env.orch.RegradeStudents(context.Background(), 1, []uint{10})
	require.NoError(t, err)
	require.Equal(t, models.GradingTaskScopeIndividual, task.Scope)
	require.Equal(t, 1, task.Total)

	finished := env.waitForTask(t, task.ID)
	require.Equal(t, models.GradingTaskStatusCompleted, finished.Status)

	graded, err := env.submissions.GetByID(context.Background(), target.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)

	untouched, err := env.submissions.GetByAssignmentAndStudent(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusTextExtracted, untouched.Status)
}

func TestOverrideGradeSurvivesRegrade(t *testing.T) {
	env := newTestEnv(t, Options{AutoTriggerThreshold: 100})
	env.publishKey(t, 1)
	submission := env.seedExtracted(t, 1, 10, referenceAnswers())

	task, err := env.orch.StartBulkGrading(context.Background(), 1)
	require.NoError(t, err)
	env.waitForTask(t, task.ID)

	first, _, err := env.orch.SubmissionResult(context.Background(), submission.ID)
	require.NoError(t, err)

	require.Error(t, env.orch.OverrideGrade(context.Background(), submission.ID, -5))
	require.NoError(t, env.orch.OverrideGrade(context.Background(), submission.ID, 85))

	regrade, err := env.orch.RegradeStudents(context.Background(), 1, []uint{10})
	require.NoError(t, err)
	env.waitForTask(t, regrade.ID)

	result, _, err := env.orch.SubmissionResult(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, result.FinalGrade)
	require.InDelta(t, 85, *result.FinalGrade, 1e-9)
	require.InDelta(t, 85, result.EffectiveGrade(), 1e-9)

	// Same answers against the same key reproduce the same prediction exactly.
	require.Equal(t, first.PredictedGrade, result.PredictedGrade)

	var history []models.GradeHistory
	require.NoError(t, env.db.Where("submission_id = ?", submission.ID).Order("id").Find(&history).Error)
	require.Len(t, history, 3)
	require.Equal(t, "auto", history[0].Source)
	require.Equal(t, "manual", history[1].Source)
	require.Equal(t, "auto", history[2].Source)
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

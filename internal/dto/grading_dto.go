package dto

import (
	"time"

	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/repository"
)

// AnswerKeyEntry is one reference answer in an uploaded answer key, keyed by
// question id in the surrounding object.
type AnswerKeyEntry struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer" validate:"required"`
	Points   *float64 `json:"points,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// AnswerKeyUploadRequest is the reference-structure input: a JSON object
// keyed by question id.
type AnswerKeyUploadRequest map[string]AnswerKeyEntry

// StructureComponent is one labeled component in a processed reference
// structure as exposed to clients.
type StructureComponent struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ProcessedQuestion mirrors one uploaded entry enriched with the processed
// structure and the labels that route to qualitative evaluation.
type ProcessedQuestion struct {
	Question              string                        `json:"question"`
	Answer                string                        `json:"answer"`
	Points                *float64                      `json:"points,omitempty"`
	Structure             map[string]StructureComponent `json:"structure"`
	RequiresLLMEvaluation []string                      `json:"requires_llm_evaluation"`
}

// NewProcessedQuestion renders the external view of a published reference.
func NewProcessedQuestion(entry AnswerKeyEntry, ref evaluation.Reference) ProcessedQuestion {
	structure := make(map[string]StructureComponent, ref.Structure.Len())
	for _, component := range ref.Structure.Components {
		structure[component.Label] = StructureComponent{
			Content:   component.Content,
			Embedding: component.Embedding,
		}
	}

	return ProcessedQuestion{
		Question:              entry.Question,
		Answer:                entry.Answer,
		Points:                entry.Points,
		Structure:             structure,
		RequiresLLMEvaluation: ref.Structure.QualitativeLabels(),
	}
}

// SubmissionResult is the per-submission, per-question grading result
// document persisted to the artifact store and served to clients.
type SubmissionResult struct {
	OriginalAnswer            string            `json:"original_answer"`
	FullSimilarityScore       float64           `json:"full_similarity_score"`
	TFIDFSimilarityScore      float64           `json:"tfidf_similarity_score"`
	StructureSimilarityScores []float64         `json:"structure_similarity_scores"`
	MeanStructureSimilarity   float64           `json:"mean_structure_similarity_score"`
	Structure                 map[string]string `json:"structure"`
	PredictedGrade            float64           `json:"predicted_grade"`
}

// NewSubmissionResult assembles the result document for one question.
func NewSubmissionResult(answer string, vector evaluation.ScoreVector, aligned evaluation.AlignedComponentMap, predictedGrade float64) SubmissionResult {
	structure := make(map[string]string, aligned.Len())
	for _, component := range aligned.Components {
		structure[component.Label] = component.Content
	}

	return SubmissionResult{
		OriginalAnswer:            answer,
		FullSimilarityScore:       vector.EmbeddingSimilarity,
		TFIDFSimilarityScore:      vector.LexicalSimilarity,
		StructureSimilarityScores: vector.ComponentScores,
		MeanStructureSimilarity:   vector.MeanComponentSimilarity,
		Structure:                 structure,
		PredictedGrade:            predictedGrade,
	}
}

// GradingTaskResponse is the external view of a batch grading task.
type GradingTaskResponse struct {
	ID           string     `json:"id"`
	AssignmentID uint       `json:"assignment_id"`
	Scope        string     `json:"scope"`
	Status       string     `json:"status"`
	Total        int        `json:"total"`
	Graded       int        `json:"graded"`
	Failed       int        `json:"failed"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewGradingTaskResponse converts the model.
func NewGradingTaskResponse(task models.GradingTask) GradingTaskResponse {
	return GradingTaskResponse{
		ID:           task.ID,
		AssignmentID: task.AssignmentID,
		Scope:        string(task.Scope),
		Status:       string(task.Status),
		Total:        task.Total,
		Graded:       task.Graded,
		Failed:       task.Failed,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	}
}

// GradeOverrideRequest sets a human final grade on a submission.
type GradeOverrideRequest struct {
	Grade float64 `json:"grade" validate:"min=0"`
}

// GradingStatusResponse reports batch progress for an assignment. Failure
// counts are always present, never omitted.
type GradingStatusResponse struct {
	AssignmentID uint                    `json:"assignment_id"`
	Counts       repository.StatusCounts `json:"counts"`
	ActiveTask   *GradingTaskResponse    `json:"active_task,omitempty"`
}

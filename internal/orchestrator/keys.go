package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gradewise/gradewise-api/internal/dto"
	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/models"
)

// PublishAnswerKey processes an uploaded reference key into a new key
// version: each answer is decomposed, every component and the full answer
// text are embedded, and the resulting reference is persisted. Published
// references are immutable; uploading again creates the next version.
func (o *Orchestrator) PublishAnswerKey(ctx context.Context, assignmentID uint, upload dto.AnswerKeyUploadRequest) (map[string]dto.ProcessedQuestion, error) {
	if len(upload) == 0 {
		return nil, fmt.Errorf("answer key upload must not be empty")
	}

	key := models.AnswerKey{AssignmentID: assignmentID}

	questionIDs := make([]string, 0, len(upload))
	for questionID := range upload {
		questionIDs = append(questionIDs, questionID)
	}
	sort.Strings(questionIDs)

	processed := make(map[string]dto.ProcessedQuestion, len(upload))
	references := make(map[string]evaluation.Reference, len(upload))

	for _, questionID := range questionIDs {
		entry := upload[questionID]
		if strings.TrimSpace(entry.Answer) == "" {
			return nil, fmt.Errorf("question %q has an empty reference answer", questionID)
		}

		reference, err := o.buildReference(ctx, questionID, entry)
		if err != nil {
			return nil, fmt.Errorf("process question %q: %w", questionID, err)
		}

		payload, err := json.Marshal(reference)
		if err != nil {
			return nil, fmt.Errorf("serialize reference for question %q: %w", questionID, err)
		}

		points := 0.0
		if entry.Points != nil {
			points = *entry.Points
		}

		key.Questions = append(key.Questions, models.AnswerKeyQuestion{
			QuestionID: questionID,
			Question:   entry.Question,
			Answer:     entry.Answer,
			Points:     points,
			Type:       entry.Type,
			Reference:  payload,
		})

		references[questionID] = reference
		processed[questionID] = dto.NewProcessedQuestion(entry, reference)
	}

	if err := o.keys.Create(ctx, &key); err != nil {
		return nil, fmt.Errorf("persist answer key: %w", err)
	}

	o.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("version", key.Version).
		Int("questions", len(key.Questions)).
		Msg("answer key published")

	return processed, nil
}

func (o *Orchestrator) buildReference(ctx context.Context, questionID string, entry dto.AnswerKeyEntry) (evaluation.Reference, error) {
	structure, err := o.decomposer.Decompose(ctx, entry.Answer, nil)
	if err != nil {
		return evaluation.Reference{}, err
	}

	for i, component := range structure.Components {
		if strings.TrimSpace(component.Content) == "" || component.RequiresQualitative {
			continue
		}

		vec, err := o.scorer.Embedder().Embed(ctx, component.Content)
		if err != nil {
			return evaluation.Reference{}, fmt.Errorf("embed component %q: %w", component.Label, err)
		}
		structure.Components[i].Embedding = vec
	}

	fullVec, err := o.scorer.Embedder().Embed(ctx, entry.Answer)
	if err != nil {
		return evaluation.Reference{}, fmt.Errorf("embed full answer: %w", err)
	}

	questionType := evaluation.QuestionType(entry.Type)
	if questionType == "" {
		questionType = evaluation.QuestionTypeText
	}

	points := 0.0
	if entry.Points != nil {
		points = *entry.Points
	}

	return evaluation.Reference{
		Answer: evaluation.AnswerText{
			QuestionID: questionID,
			Text:       entry.Answer,
			MaxPoints:  points,
			Type:       questionType,
		},
		Structure: structure,
		Embedding: fullVec,
	}, nil
}

// loadReferences resolves the current key version into the shared read-only
// reference set for a batch. Failure here aborts the whole batch: no
// submission can be scored without the references.
func (o *Orchestrator) loadReferences(ctx context.Context, assignmentID uint) (map[string]evaluation.Reference, error) {
	key, err := o.keys.GetCurrent(ctx, assignmentID)
	if err != nil {
		return nil, ErrAnswerKeyMissing
	}

	references := make(map[string]evaluation.Reference, len(key.Questions))
	for _, question := range key.Questions {
		var reference evaluation.Reference
		if len(question.Reference) == 0 {
			return nil, fmt.Errorf("question %q has no processed reference", question.QuestionID)
		}
		if err := json.Unmarshal(question.Reference, &reference); err != nil {
			return nil, fmt.Errorf("decode reference for question %q: %w", question.QuestionID, err)
		}

		references[question.QuestionID] = reference
	}

	if len(references) == 0 {
		return nil, ErrAnswerKeyMissing
	}

	return references, nil
}

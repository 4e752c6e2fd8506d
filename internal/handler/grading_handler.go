package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/dto"
	"github.com/gradewise/gradewise-api/internal/orchestrator"
	"github.com/gradewise/gradewise-api/internal/utils"
)

// GradingHandler exposes the grading pipeline: answer key publication,
// submission intake, batch triggers, status and results.
type GradingHandler struct {
	orchestrator *orchestrator.Orchestrator
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(orch *orchestrator.Orchestrator, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		orchestrator: orch,
		validate:     validate,
		logger:       logger.With().Str("component", "grading_handler").Logger(),
	}
}

// RegisterAssignments attaches the assignment-scoped grading endpoints.
func (h *GradingHandler) RegisterAssignments(router fiber.Router) {
	router.Post("/:id/answer-key", h.publishAnswerKey)
	router.Post("/:id/sync", h.syncSubmissions)
	router.Post("/:id/grade", h.startBulkGrading)
	router.Post("/:id/candidates/:cid/grade", h.regradeCandidate)
	router.Get("/:id/grading-status", h.gradingStatus)
}

// RegisterSubmissions attaches the submission-scoped result endpoints.
func (h *GradingHandler) RegisterSubmissions(router fiber.Router) {
	router.Get("/:id/result", h.submissionResult)
	router.Patch("/:id/grade", h.overrideGrade)
}

func (h *GradingHandler) publishAnswerKey(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.AnswerKeyUploadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if len(payload) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "answer key must contain at least one question")
	}
	for questionID, entry := range payload {
		if err := h.validate.Struct(entry); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "question "+questionID+": "+err.Error())
		}
	}

	processed, err := h.orchestrator.PublishAnswerKey(c.UserContext(), assignmentID, payload)
	if err != nil {
		h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("failed to publish answer key")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to publish answer key")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "answer key published", processed)
}

func (h *GradingHandler) syncSubmissions(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.orchestrator.SyncSubmissions(c.UserContext(), assignmentID); err != nil {
		h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("submission sync failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "submission sync failed")
	}
	if err := h.orchestrator.ExtractTexts(c.UserContext(), assignmentID); err != nil {
		h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("text extraction failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "text extraction failed")
	}

	status, err := h.orchestrator.GradingStatus(c.UserContext(), assignmentID)
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load grading status")
	}

	return utils.SendSuccess(c, "submissions synced", status)
}

func (h *GradingHandler) startBulkGrading(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	task, err := h.orchestrator.StartBulkGrading(c.UserContext(), assignmentID)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrIndividualTaskActive):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		case errors.Is(err, orchestrator.ErrAnswerKeyMissing):
			return utils.SendError(c, fiber.StatusPreconditionFailed, err.Error())
		default:
			h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("failed to start grading task")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to start grading task")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "grading task accepted", dto.NewGradingTaskResponse(task))
}

func (h *GradingHandler) regradeCandidate(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}
	studentID, err := parseUintParam(c, "cid")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid candidate identifier")
	}

	task, err := h.orchestrator.RegradeStudents(c.UserContext(), assignmentID, []uint{studentID})
	if err != nil {
		if errors.Is(err, orchestrator.ErrAnswerKeyMissing) {
			return utils.SendError(c, fiber.StatusPreconditionFailed, err.Error())
		}
		h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Uint("student_id", studentID).Msg("failed to start regrade task")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to start regrade task")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "regrade task accepted", dto.NewGradingTaskResponse(task))
}

func (h *GradingHandler) gradingStatus(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	status, err := h.orchestrator.GradingStatus(c.UserContext(), assignmentID)
	if err != nil {
		h.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("failed to load grading status")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load grading status")
	}

	return utils.SendSuccess(c, "grading status", status)
}

func (h *GradingHandler) submissionResult(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	result, questions, err := h.orchestrator.SubmissionResult(c.UserContext(), submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "no grade recorded for this submission")
		}
		h.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to load submission result")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load submission result")
	}

	return utils.SendSuccess(c, "submission result", fiber.Map{
		"grade":     result,
		"questions": questions,
	})
}

func (h *GradingHandler) overrideGrade(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.GradeOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.orchestrator.OverrideGrade(c.UserContext(), submissionID, payload.Grade); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "no grade recorded for this submission")
		}
		h.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to override grade")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to override grade")
	}

	return utils.SendSuccess(c, "grade overridden", nil)
}

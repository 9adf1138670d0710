package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/service"
	"github.com/campuscode/autograder-api/internal/utils"
)

// InstructorHandler manages the question authoring and evaluation endpoints.
type InstructorHandler struct {
	questions  service.QuestionService
	evaluation service.EvaluationService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewInstructorHandler builds an instructor handler instance.
func NewInstructorHandler(questions service.QuestionService, evaluation service.EvaluationService, validator *validator.Validate, logger zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{
		questions:  questions,
		evaluation: evaluation,
		validator:  validator,
		logger:     logger.With().Str("component", "instructor_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *InstructorHandler) Register(router fiber.Router) {
	router.Get("/classes", h.listClasses)
	router.Get("/class/:classId", h.listQuestions)
	router.Post("/class/:classId/question", h.createQuestion)
	router.Get("/class/:classId/:questionId", h.questionDetail)
	router.Post("/evaluate/:questionId", h.evaluate)
}

func (h *InstructorHandler) listClasses(c *fiber.Ctx) error {
	classes, err := h.questions.Classes(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "classes retrieved", classes)
}

func (h *InstructorHandler) listQuestions(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class id")
	}

	questions, err := h.questions.List(c.Context(), userIDFromContext(c), classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "questions retrieved", questions)
}

func (h *InstructorHandler) createQuestion(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class id")
	}

	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	question, err := h.questions.Create(c.Context(), userIDFromContext(c), classID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question created", question)
}

func (h *InstructorHandler) questionDetail(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class id")
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	detail, err := h.questions.Detail(c.Context(), userIDFromContext(c), classID, questionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "question retrieved", detail)
}

func (h *InstructorHandler) evaluate(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	if err := h.evaluation.Evaluate(c.Context(), userIDFromContext(c), questionID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluation completed", nil)
}

func (h *InstructorHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrClassNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "class not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrNotClassOwner):
		return utils.SendError(c, fiber.StatusForbidden, "class belongs to another instructor")
	case errors.Is(err, service.ErrQuestionAlreadyClosed):
		return utils.SendError(c, fiber.StatusConflict, "question has already been evaluated")
	case errors.Is(err, service.ErrEmptyQuestion):
		return utils.SendError(c, fiber.StatusBadRequest, "question text is required")
	case errors.Is(err, service.ErrNoValidTestCases):
		return utils.SendError(c, fiber.StatusBadRequest, "at least one test case with input and output is required")
	case errors.Is(err, service.ErrSandboxUnavailable):
		requestLogger(h.logger, c).Error().Err(err).Msg("sandbox unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "execution backend unavailable")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campuscode/autograder-api/internal/service"
	"github.com/campuscode/autograder-api/internal/utils"
)

// StudentHandler manages the enrolled-student portal endpoints.
type StudentHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewStudentHandler builds a student handler instance.
func NewStudentHandler(service service.SubmissionService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		service: service,
		logger:  logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Get("/classes", h.listClasses)
	router.Get("/class/:classId", h.listQuestions)
	router.Get("/class/:classId/:questionId", h.questionDetail)
	router.Post("/run/:questionId", h.testRun)
	router.Post("/submission/:questionId", h.submit)
}

func (h *StudentHandler) listClasses(c *fiber.Ctx) error {
	classes, err := h.service.Classes(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "classes retrieved", classes)
}

func (h *StudentHandler) listQuestions(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class id")
	}

	questions, err := h.service.ClassQuestions(c.Context(), userIDFromContext(c), classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "questions retrieved", questions)
}

func (h *StudentHandler) questionDetail(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid class id")
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	detail, err := h.service.QuestionDetail(c.Context(), userIDFromContext(c), classID, questionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "question retrieved", detail)
}

func (h *StudentHandler) testRun(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	results, err := h.service.TestRun(c.Context(), userIDFromContext(c), questionID, file, c.FormValue("old_filename"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test run completed", results)
}

func (h *StudentHandler) submit(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	if err := h.service.Submit(c.Context(), userIDFromContext(c), questionID, file, c.FormValue("old_filename")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission recorded", nil)
}

func (h *StudentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrClassNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "class not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrNotEnrolled):
		return utils.SendError(c, fiber.StatusForbidden, "not enrolled in this class")
	case errors.Is(err, service.ErrQuestionClosed):
		return utils.SendError(c, fiber.StatusConflict, "question is closed")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, "submission already recorded for this question")
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "unsupported source file type")
	case errors.Is(err, service.ErrInvalidSourceFile):
		return utils.SendError(c, fiber.StatusBadRequest, "file does not look like source code")
	case errors.Is(err, service.ErrSandboxUnavailable):
		requestLogger(h.logger, c).Error().Err(err).Msg("sandbox unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "execution backend unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

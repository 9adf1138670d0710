package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/repository"
)

// Errors shared across the question workflows.
var (
	ErrClassNotFound    = errors.New("class not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNotClassOwner    = errors.New("class is owned by another instructor")
	ErrEmptyQuestion    = errors.New("question text must not be empty")
	ErrNoValidTestCases = errors.New("at least one test case with input and output is required")
)

// ReportProvider retrieves the persisted plagiarism report for a closed
// question. The bool result distinguishes "not yet computed" from errors.
type ReportProvider interface {
	Report(ctx context.Context, questionID uint) (dto.PlagiarismReportResponse, bool, error)
}

// QuestionService exposes the instructor question workflows.
type QuestionService interface {
	Classes(ctx context.Context, instructorID uint) (dto.ClassListResponse, error)
	Create(ctx context.Context, instructorID, classID uint, payload dto.QuestionCreateRequest) (dto.QuestionSummary, error)
	List(ctx context.Context, instructorID, classID uint) (dto.QuestionListResponse, error)
	Detail(ctx context.Context, instructorID, classID, questionID uint) (dto.InstructorQuestionDetail, error)
}

type questionService struct {
	questions repository.QuestionRepository
	classes   repository.ClassRepository
	users     repository.UserRepository
	reports   ReportProvider
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewQuestionService constructs a QuestionService.
func NewQuestionService(questions repository.QuestionRepository, classes repository.ClassRepository, users repository.UserRepository, reports ReportProvider, validate *validator.Validate, logger zerolog.Logger) QuestionService {
	return &questionService{
		questions: questions,
		classes:   classes,
		users:     users,
		reports:   reports,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "question_service").Logger(),
	}
}

// Classes lists the classes owned by the acting instructor.
func (s *questionService) Classes(ctx context.Context, instructorID uint) (dto.ClassListResponse, error) {
	instructor, err := s.users.GetByID(ctx, instructorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassListResponse{}, ErrNotClassOwner
		}
		return dto.ClassListResponse{}, err
	}
	if !instructor.IsInstructor() {
		return dto.ClassListResponse{}, ErrNotClassOwner
	}

	classes, err := s.classes.ListByInstructor(ctx, instructorID)
	if err != nil {
		return dto.ClassListResponse{}, err
	}

	summaries := make([]dto.ClassSummary, 0, len(classes))
	for _, class := range classes {
		summaries = append(summaries, dto.ClassSummary{
			ClassID:        class.ID,
			InstructorID:   instructor.ID,
			InstructorName: instructor.Name,
		})
	}
	return dto.ClassListResponse{Classes: summaries}, nil
}

func (s *questionService) Create(ctx context.Context, instructorID, classID uint, payload dto.QuestionCreateRequest) (dto.QuestionSummary, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionSummary{}, err
	}

	if err := s.requireOwnership(ctx, instructorID, classID); err != nil {
		return dto.QuestionSummary{}, err
	}

	text := strings.TrimSpace(s.sanitizer.Sanitize(payload.QuestionText))
	if text == "" {
		return dto.QuestionSummary{}, ErrEmptyQuestion
	}

	cases := make([]models.TestCase, 0, len(payload.TestCases))
	for _, tc := range payload.TestCases {
		input := strings.TrimSpace(tc.Input)
		output := strings.TrimSpace(tc.Output)
		if input == "" || output == "" {
			continue
		}
		cases = append(cases, models.TestCase{
			Input:    input,
			Expected: output,
			Position: len(cases),
		})
	}
	if len(cases) == 0 {
		return dto.QuestionSummary{}, ErrNoValidTestCases
	}

	threshold := payload.Threshold
	if threshold == 0 {
		threshold = models.DefaultSimilarityThreshold
	}

	question := models.Question{
		ClassID:   classID,
		Text:      text,
		Status:    models.QuestionStatusOpen,
		Threshold: threshold,
		TestCases: cases,
	}

	if err := s.questions.Create(ctx, &question); err != nil {
		return dto.QuestionSummary{}, err
	}

	s.logger.Info().Uint("question_id", question.ID).Uint("class_id", classID).Int("test_cases", len(cases)).Msg("question created")
	return dto.QuestionSummary{QuestionID: question.ID, Status: string(question.Status)}, nil
}

func (s *questionService) List(ctx context.Context, instructorID, classID uint) (dto.QuestionListResponse, error) {
	if err := s.requireOwnership(ctx, instructorID, classID); err != nil {
		return dto.QuestionListResponse{}, err
	}

	questions, err := s.questions.ListByClass(ctx, classID)
	if err != nil {
		return dto.QuestionListResponse{}, err
	}

	return dto.QuestionListResponse{Questions: dto.NewQuestionSummaries(questions)}, nil
}

func (s *questionService) Detail(ctx context.Context, instructorID, classID, questionID uint) (dto.InstructorQuestionDetail, error) {
	if err := s.requireOwnership(ctx, instructorID, classID); err != nil {
		return dto.InstructorQuestionDetail{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.InstructorQuestionDetail{}, ErrQuestionNotFound
		}
		return dto.InstructorQuestionDetail{}, err
	}
	if question.ClassID != classID {
		return dto.InstructorQuestionDetail{}, ErrQuestionNotFound
	}

	detail := dto.InstructorQuestionDetail{Status: string(question.Status)}

	if question.IsOpen() {
		detail.Msg = "Click on Evaluate Button For Results"
		return detail, nil
	}

	report, found, err := s.reports.Report(ctx, questionID)
	if err != nil {
		return dto.InstructorQuestionDetail{}, err
	}
	if !found {
		// Closed with no persisted report: evaluation output is still being
		// written, which is not the same as never having been triggered.
		detail.Pending = true
		detail.Msg = "Evaluation in progress"
		return detail, nil
	}

	detail.Results = &report
	return detail, nil
}

func (s *questionService) requireOwnership(ctx context.Context, instructorID, classID uint) error {
	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}
	if class.InstructorID != instructorID {
		return ErrNotClassOwner
	}
	return nil
}

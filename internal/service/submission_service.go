package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/repository"
	"github.com/campuscode/autograder-api/pkg/storage"
)

// Errors surfaced by the submission intake contract.
var (
	ErrNotEnrolled         = errors.New("student is not enrolled in this class")
	ErrQuestionClosed      = errors.New("question is closed")
	ErrAlreadySubmitted    = errors.New("final submission already recorded")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidSourceFile   = errors.New("source file must be plain text")
)

// maxSourceBytes bounds a single uploaded solution.
const maxSourceBytes = 256 * 1024

// SubmissionService exposes the student-facing workflows: enrolment listings,
// question detail, ephemeral test runs, and the exactly-once final submit.
type SubmissionService interface {
	Classes(ctx context.Context, studentID uint) (dto.ClassListResponse, error)
	ClassQuestions(ctx context.Context, studentID, classID uint) (dto.QuestionListResponse, error)
	QuestionDetail(ctx context.Context, studentID, classID, questionID uint) (dto.StudentQuestionDetail, error)
	TestRun(ctx context.Context, studentID, questionID uint, file *multipart.FileHeader, oldFilename string) (dto.TestRunResponse, error)
	Submit(ctx context.Context, studentID, questionID uint, file *multipart.FileHeader, oldFilename string) error
}

type submissionService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	classes     repository.ClassRepository
	runner      CodeRunner
	store       storage.ObjectStore
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(submissions repository.SubmissionRepository, questions repository.QuestionRepository, classes repository.ClassRepository, runner CodeRunner, store storage.ObjectStore, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		questions:   questions,
		classes:     classes,
		runner:      runner,
		store:       store,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Classes(ctx context.Context, studentID uint) (dto.ClassListResponse, error) {
	classes, err := s.classes.ListEnrolled(ctx, studentID)
	if err != nil {
		return dto.ClassListResponse{}, err
	}

	summaries := make([]dto.ClassSummary, 0, len(classes))
	for _, class := range classes {
		summaries = append(summaries, dto.ClassSummary{
			ClassID:        class.ID,
			InstructorID:   class.InstructorID,
			InstructorName: class.Instructor.Name,
		})
	}
	return dto.ClassListResponse{Classes: summaries}, nil
}

func (s *submissionService) ClassQuestions(ctx context.Context, studentID, classID uint) (dto.QuestionListResponse, error) {
	if err := s.requireEnrollment(ctx, classID, studentID); err != nil {
		return dto.QuestionListResponse{}, err
	}

	questions, err := s.questions.ListByClass(ctx, classID)
	if err != nil {
		return dto.QuestionListResponse{}, err
	}
	return dto.QuestionListResponse{Questions: dto.NewQuestionSummaries(questions)}, nil
}

func (s *submissionService) QuestionDetail(ctx context.Context, studentID, classID, questionID uint) (dto.StudentQuestionDetail, error) {
	question, err := s.loadQuestion(ctx, questionID)
	if err != nil {
		return dto.StudentQuestionDetail{}, err
	}
	if question.ClassID != classID {
		return dto.StudentQuestionDetail{}, ErrQuestionNotFound
	}
	if err := s.requireEnrollment(ctx, question.ClassID, studentID); err != nil {
		return dto.StudentQuestionDetail{}, err
	}

	submission, err := s.ownSubmission(ctx, questionID, studentID)
	if err != nil {
		return dto.StudentQuestionDetail{}, err
	}

	return dto.NewStudentQuestionDetail(question, submission), nil
}

// TestRun executes an uploaded solution against the question's test cases
// without touching persistent state. Repeatable while the question is open
// and the student has not finalised.
func (s *submissionService) TestRun(ctx context.Context, studentID, questionID uint, file *multipart.FileHeader, oldFilename string) (dto.TestRunResponse, error) {
	question, language, source, err := s.acceptUpload(ctx, studentID, questionID, file)
	if err != nil {
		return dto.TestRunResponse{}, err
	}

	results, err := s.runner.Run(ctx, language, source, question.TestCases)
	if err != nil {
		return dto.TestRunResponse{}, err
	}

	// Scratch artifacts mirror the final layout so a language switch can
	// retire the stale file by its advertised old filename. Failures here
	// never fail the run itself.
	key := scratchKey(questionID, studentID, language.FileName())
	if err := s.store.Put(ctx, key, strings.NewReader(source), int64(len(source)), "text/plain"); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store scratch artifact")
	}
	if stale, ok := staleLanguage(oldFilename, language); ok {
		s.retireArtifact(ctx, scratchKey(questionID, studentID, stale.FileName()))
	}

	return dto.TestRunResponse{Results: results}, nil
}

// Submit records the student's final attempt. The unique (question, student)
// row is created first as the exactly-once authority; only the winner of a
// racing pair gets to write the bucket artifact.
func (s *submissionService) Submit(ctx context.Context, studentID, questionID uint, file *multipart.FileHeader, oldFilename string) error {
	question, language, source, err := s.acceptUpload(ctx, studentID, questionID, file)
	if err != nil {
		return err
	}

	key := submissionKey(questionID, studentID, language.FileName())
	submission := models.Submission{
		QuestionID: question.ID,
		StudentID:  studentID,
		Language:   language,
		Filename:   language.FileName(),
		Source:     source,
		ObjectKey:  key,
		Status:     models.SubmissionStatusPending,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return ErrAlreadySubmitted
		}
		return err
	}

	if err := s.store.Put(ctx, key, strings.NewReader(source), int64(len(source)), "text/plain"); err != nil {
		// Undo the row so the student can retry once storage recovers.
		if delErr := s.submissions.Delete(ctx, submission.ID); delErr != nil {
			s.logger.Error().Err(delErr).Uint("submission_id", submission.ID).Msg("failed to roll back submission row")
		}
		return fmt.Errorf("store submission artifact: %w", err)
	}
	if stale, ok := staleLanguage(oldFilename, language); ok {
		s.retireArtifact(ctx, submissionKey(questionID, studentID, stale.FileName()))
	}

	s.logger.Info().Uint("question_id", questionID).Uint("student_id", studentID).Str("language", string(language)).Msg("final submission recorded")
	return nil
}

// acceptUpload enforces the shared intake guards: enrolment, open question,
// no prior final submission, and a valid plain-text source file.
func (s *submissionService) acceptUpload(ctx context.Context, studentID, questionID uint, file *multipart.FileHeader) (models.Question, models.Language, string, error) {
	question, err := s.loadQuestion(ctx, questionID)
	if err != nil {
		return models.Question{}, "", "", err
	}
	if err := s.requireEnrollment(ctx, question.ClassID, studentID); err != nil {
		return models.Question{}, "", "", err
	}
	if !question.IsOpen() {
		return models.Question{}, "", "", ErrQuestionClosed
	}

	existing, err := s.ownSubmission(ctx, questionID, studentID)
	if err != nil {
		return models.Question{}, "", "", err
	}
	if existing != nil {
		return models.Question{}, "", "", ErrAlreadySubmitted
	}

	language, source, err := readSourceFile(file)
	if err != nil {
		return models.Question{}, "", "", err
	}

	return question, language, source, nil
}

func (s *submissionService) loadQuestion(ctx context.Context, questionID uint) (models.Question, error) {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	return question, nil
}

func (s *submissionService) requireEnrollment(ctx context.Context, classID, studentID uint) error {
	enrolled, err := s.classes.IsEnrolled(ctx, classID, studentID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrNotEnrolled
	}
	return nil
}

func (s *submissionService) ownSubmission(ctx context.Context, questionID, studentID uint) (*models.Submission, error) {
	submission, err := s.submissions.GetByQuestionAndStudent(ctx, questionID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

// staleLanguage interprets the optional old_filename migration signal. It
// yields the previous language only when the signal names another supported
// language than the one just uploaded.
func staleLanguage(oldFilename string, current models.Language) (models.Language, bool) {
	oldFilename = strings.TrimSpace(oldFilename)
	if oldFilename == "" {
		return "", false
	}
	previous, err := models.LanguageFromFilename(oldFilename)
	if err != nil || previous == current {
		return "", false
	}
	return previous, true
}

func (s *submissionService) retireArtifact(ctx context.Context, key string) {
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to retire stale artifact")
	}
}

func readSourceFile(file *multipart.FileHeader) (models.Language, string, error) {
	if file == nil {
		return "", "", fmt.Errorf("source file is required")
	}

	language, err := models.LanguageFromFilename(file.Filename)
	if err != nil {
		return "", "", ErrUnsupportedLanguage
	}

	reader, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(reader, maxSourceBytes+1)); err != nil {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	if buf.Len() > maxSourceBytes {
		return "", "", fmt.Errorf("source file exceeds %d bytes", maxSourceBytes)
	}
	if buf.Len() == 0 {
		return "", "", fmt.Errorf("source file is empty")
	}

	detected := mimetype.Detect(buf.Bytes())
	if !detected.Is("text/plain") && !strings.HasPrefix(detected.String(), "text/") {
		return "", "", ErrInvalidSourceFile
	}

	return language, buf.String(), nil
}

func submissionKey(questionID, studentID uint, filename string) string {
	return fmt.Sprintf("question_%d/student_%d_%s", questionID, studentID, filename)
}

func scratchKey(questionID, studentID uint, filename string) string {
	return fmt.Sprintf("scratch/question_%d/student_%d_%s", questionID, studentID, filename)
}

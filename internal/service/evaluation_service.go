package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/repository"
	"github.com/campuscode/autograder-api/pkg/storage"
)

// ErrQuestionAlreadyClosed indicates the evaluate transition was attempted on
// a closed question: a logic error, distinct from transient failures.
var ErrQuestionAlreadyClosed = errors.New("question has already been evaluated")

// EvaluationService drives the open->closed transition: grading every final
// submission, computing the pairwise plagiarism report, and persisting both.
type EvaluationService interface {
	Evaluate(ctx context.Context, instructorID, questionID uint) error
	Report(ctx context.Context, questionID uint) (dto.PlagiarismReportResponse, bool, error)
}

type evaluationService struct {
	db          *gorm.DB
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	classes     repository.ClassRepository
	reports     repository.ReportRepository
	runner      CodeRunner
	store       storage.ObjectStore
	cache       *redis.Client
	cacheTTL    time.Duration
	events      EventPublisher
	logger      zerolog.Logger
}

// NewEvaluationService constructs an EvaluationService over db. The service
// owns its repositories because the close commits grades, report rows, and
// the status flip in one transaction. cache and events may be nil; the
// service then skips report caching and event publication.
func NewEvaluationService(db *gorm.DB, runner CodeRunner, store storage.ObjectStore, cache *redis.Client, cacheTTL time.Duration, events EventPublisher, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		db:          db,
		questions:   repository.NewQuestionRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		classes:     repository.NewClassRepository(db),
		reports:     repository.NewReportRepository(db),
		runner:      runner,
		store:       store,
		cache:       cache,
		cacheTTL:    cacheTTL,
		events:      events,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
	}
}

type gradedSubmission struct {
	submission models.Submission
	score      float64
	feedback   string
	runs       []models.TestCaseRun
}

// Evaluate closes the question and produces its report. All grading and
// comparison work happens before the status flip, so any failure up to that
// point leaves the question open and the call safe to retry.
func (s *evaluationService) Evaluate(ctx context.Context, instructorID, questionID uint) error {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	class, err := s.classes.GetByID(ctx, question.ClassID)
	if err != nil {
		return err
	}
	if class.InstructorID != instructorID {
		return ErrNotClassOwner
	}

	if !question.CanEvaluate() {
		return ErrQuestionAlreadyClosed
	}

	// Grade until the submission set is stable: finals accepted while earlier
	// submissions were running in the sandbox are picked up and graded too.
	graded := make(map[uint]gradedSubmission)
	var submissions []models.Submission
	for {
		submissions, err = s.submissions.ListByQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		pending := 0
		for _, submission := range submissions {
			if _, done := graded[submission.ID]; done {
				continue
			}
			pending++
			g, err := s.grade(ctx, question, submission)
			if err != nil {
				return fmt.Errorf("grade submission %d: %w", submission.ID, err)
			}
			graded[submission.ID] = g
		}
		if pending == 0 {
			break
		}
	}

	report := s.buildReport(question, submissions)

	if err := s.uploadReportArtifact(ctx, questionID, report); err != nil {
		return fmt.Errorf("store report artifact: %w", err)
	}

	// The guarded status flip, grade persistence, and report rows commit
	// together. Any failure rolls the question back to open, so the call is
	// always retryable and a closed question can never lack its report.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		closed, err := repository.NewQuestionRepository(tx).Close(ctx, questionID)
		if err != nil {
			return err
		}
		if !closed {
			return ErrQuestionAlreadyClosed
		}

		txSubmissions := repository.NewSubmissionRepository(tx)
		latest, err := txSubmissions.ListByQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if len(latest) != len(submissions) {
			// A final slipped in between the stable grading pass and the
			// flip; roll back and let the caller retry.
			return fmt.Errorf("submissions changed while evaluating question %d", questionID)
		}

		for _, g := range graded {
			runsJSON, err := json.Marshal(g.runs)
			if err != nil {
				runsJSON = nil
			}
			if err := txSubmissions.SaveGrade(ctx, g.submission.ID, g.score, g.feedback, datatypes.JSON(runsJSON)); err != nil {
				return fmt.Errorf("persist grade for submission %d: %w", g.submission.ID, err)
			}
		}

		return repository.NewReportRepository(tx).Create(ctx, &report)
	})
	if err != nil {
		return err
	}

	s.cacheReport(ctx, questionID, dto.NewPlagiarismReportResponse(report))

	if s.events != nil {
		event := QuestionEvaluatedEvent{
			QuestionID:   questionID,
			ClassID:      question.ClassID,
			Submissions:  len(submissions),
			FlaggedPairs: countFlagged(report.Pairs),
		}
		if err := s.events.Publish(ctx, SubjectQuestionEvaluated, event); err != nil {
			s.logger.Warn().Err(err).Uint("question_id", questionID).Msg("failed to publish evaluation event")
		}
	}

	s.logger.Info().
		Uint("question_id", questionID).
		Int("submissions", len(submissions)).
		Int("pairs", len(report.Pairs)).
		Msg("question evaluated and closed")
	return nil
}

// Report returns the persisted report for a question. The second result is
// false when no report exists yet. Reads never recompute: the stored rows are
// the single source, fronted by the cache.
func (s *evaluationService) Report(ctx context.Context, questionID uint) (dto.PlagiarismReportResponse, bool, error) {
	cacheKey := reportCacheKey(questionID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.PlagiarismReportResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, true, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read report cache")
		}
	}

	report, err := s.reports.GetByQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlagiarismReportResponse{}, false, nil
		}
		return dto.PlagiarismReportResponse{}, false, err
	}

	response := dto.NewPlagiarismReportResponse(report)
	s.cacheReport(ctx, questionID, response)
	return response, true, nil
}

func (s *evaluationService) grade(ctx context.Context, question models.Question, submission models.Submission) (gradedSubmission, error) {
	runs, err := s.runner.Run(ctx, submission.Language, submission.Source, question.TestCases)
	if err != nil {
		return gradedSubmission{}, err
	}

	passed := 0
	var failures []string
	for _, run := range runs {
		if run.Status == models.TestRunPassed {
			passed++
			continue
		}
		failures = append(failures, fmt.Sprintf("test %d: %s", run.TestCase, run.Status))
	}

	total := len(runs)
	score := 0.0
	if total > 0 {
		score = float64(passed) / float64(total) * 100
	}

	feedback := fmt.Sprintf("Passed %d of %d test cases.", passed, total)
	if len(failures) > 0 {
		feedback += " " + strings.Join(failures, "; ") + "."
	}

	return gradedSubmission{submission: submission, score: score, feedback: feedback, runs: runs}, nil
}

// buildReport computes every pairwise comparison in submission order and
// enforces the flag invariant against the question threshold.
func (s *evaluationService) buildReport(question models.Question, submissions []models.Submission) models.PlagiarismReport {
	report := models.PlagiarismReport{
		QuestionID: question.ID,
		Threshold:  question.Threshold,
		Bucket:     s.store.Bucket(),
	}

	position := 0
	for i := 0; i < len(submissions); i++ {
		for j := i + 1; j < len(submissions); j++ {
			report.Pairs = append(report.Pairs, models.PlagiarismPair{
				File1:      artifactName(submissions[i]),
				File2:      artifactName(submissions[j]),
				Similarity: Similarity(submissions[i].Source, submissions[j].Source),
				Position:   position,
			})
			position++
		}
	}

	report.Normalize()
	return report
}

func (s *evaluationService) uploadReportArtifact(ctx context.Context, questionID uint, report models.PlagiarismReport) error {
	payload, err := json.Marshal(dto.NewPlagiarismReportResponse(report))
	if err != nil {
		return err
	}
	key := fmt.Sprintf("reports/question_%d.json", questionID)
	return s.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json")
}

func (s *evaluationService) cacheReport(ctx context.Context, questionID uint, response dto.PlagiarismReportResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, reportCacheKey(questionID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store report cache")
	}
}

func artifactName(submission models.Submission) string {
	return fmt.Sprintf("student_%d_%s", submission.StudentID, submission.Filename)
}

func countFlagged(pairs []models.PlagiarismPair) int {
	flagged := 0
	for _, pair := range pairs {
		if pair.Flagged {
			flagged++
		}
	}
	return flagged
}

func reportCacheKey(questionID uint) string {
	return fmt.Sprintf("report:question:%d", questionID)
}

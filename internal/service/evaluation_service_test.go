package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/models"
)

type capturedEvent struct {
	subject string
	payload interface{}
}

type captureEvents struct {
	published []capturedEvent
}

func (c *captureEvents) Publish(_ context.Context, subject string, payload interface{}) error {
	c.published = append(c.published, capturedEvent{subject: subject, payload: payload})
	return nil
}

func newEvaluationService(t *testing.T, db *gorm.DB, runner CodeRunner, store *fakeStore, cache *redis.Client, events EventPublisher) EvaluationService {
	t.Helper()
	return NewEvaluationService(db, runner, store, cache, time.Minute, events, zerolog.Nop())
}

func seedSubmission(t *testing.T, db *gorm.DB, questionID, studentID uint, source string) models.Submission {
	t.Helper()

	submission := models.Submission{
		QuestionID: questionID,
		StudentID:  studentID,
		Language:   models.LanguagePython,
		Filename:   "Main.py",
		Source:     source,
		ObjectKey:  submissionKey(questionID, studentID, "Main.py"),
		Status:     models.SubmissionStatusPending,
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestEvaluationServiceEvaluate(t *testing.T) {
	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	second := models.User{Name: "Pat Cole", Email: "pat@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: class.ID, StudentID: second.ID}).Error)

	// Near-identical solutions so the pair lands above the 0.80 threshold.
	seedSubmission(t, db, question.ID, student.ID, "a, b = input().split()\nprint(int(a) + int(b))\n# 3 15")
	seedSubmission(t, db, question.ID, second.ID, "a, b = input().split()\nprint(int(a) + int(b))\n# 3 15 x")

	store := newFakeStore()
	events := &captureEvents{}
	svc := newEvaluationService(t, db, &fakeRunner{}, store, nil, events)

	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))

	var updated models.Question
	require.NoError(t, db.First(&updated, question.ID).Error)
	require.Equal(t, models.QuestionStatusClosed, updated.Status)

	var graded []models.Submission
	require.NoError(t, db.Where("question_id = ?", question.ID).Find(&graded).Error)
	require.Len(t, graded, 2)
	for _, submission := range graded {
		require.Equal(t, models.SubmissionStatusGraded, submission.Status)
		require.NotNil(t, submission.Score)
		require.InDelta(t, 100.0, *submission.Score, 1e-9)
		require.NotEmpty(t, submission.Feedback)

		var runs []models.TestCaseRun
		require.NoError(t, json.Unmarshal(submission.Results, &runs))
		require.Len(t, runs, 2)
		require.Equal(t, models.TestRunPassed, runs[0].Status)
	}

	report, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "test-bucket", report.Bucket)
	require.InDelta(t, models.DefaultSimilarityThreshold, report.Threshold, 1e-9)
	require.Len(t, report.Results, 1)

	pair := report.Results[0]
	require.GreaterOrEqual(t, pair.Similarity, report.Threshold)
	require.True(t, pair.PlagiarismFlag)

	// The report artifact is written alongside the rows.
	require.Contains(t, store.objects, fmt.Sprintf("reports/question_%d.json", question.ID))

	require.Len(t, events.published, 1)
	require.Equal(t, SubjectQuestionEvaluated, events.published[0].subject)
}

func TestEvaluationServiceFlagMatchesThreshold(t *testing.T) {
	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	second := models.User{Name: "Pat Cole", Email: "pat@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: class.ID, StudentID: second.ID}).Error)

	// Unrelated solutions stay below the threshold and must not be flagged.
	seedSubmission(t, db, question.ID, student.ID, "values = input().split()\nprint(int(values[0]) + int(values[1]))")
	seedSubmission(t, db, question.ID, second.ID, "import sys\ndata = sys.stdin.read().split()\ntotal = 0\nfor item in data:\n    total += int(item)\nprint(total)")

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), nil, nil)
	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))

	report, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, report.Results, 1)
	require.Less(t, report.Results[0].Similarity, report.Threshold)
	require.False(t, report.Results[0].PlagiarismFlag)
	require.Empty(t, report.FlaggedOnly())
}

func TestEvaluationServiceRejectsClosedQuestion(t *testing.T) {
	db := setupTestDB(t)
	instructor, _, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusClosed)

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), nil, nil)

	err := svc.Evaluate(context.Background(), instructor.ID, question.ID)
	require.ErrorIs(t, err, ErrQuestionAlreadyClosed)
}

func TestEvaluationServiceOwnership(t *testing.T) {
	db := setupTestDB(t)
	_, _, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	other := models.User{Name: "Dr. Kim", Email: "kim@example.edu", Role: models.RoleInstructor}
	require.NoError(t, db.Create(&other).Error)

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), nil, nil)

	err := svc.Evaluate(context.Background(), other.ID, question.ID)
	require.ErrorIs(t, err, ErrNotClassOwner)

	var unchanged models.Question
	require.NoError(t, db.First(&unchanged, question.ID).Error)
	require.Equal(t, models.QuestionStatusOpen, unchanged.Status)
}

func TestEvaluationServiceStorageFailureLeavesQuestionOpen(t *testing.T) {
	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	seedSubmission(t, db, question.ID, student.ID, "print(3)")

	store := newFakeStore()
	store.putErr = errors.New("object storage down")
	svc := newEvaluationService(t, db, &fakeRunner{}, store, nil, nil)

	err := svc.Evaluate(context.Background(), instructor.ID, question.ID)
	require.Error(t, err)

	// The transition never committed, so a retry is legal.
	var unchanged models.Question
	require.NoError(t, db.First(&unchanged, question.ID).Error)
	require.Equal(t, models.QuestionStatusOpen, unchanged.Status)

	store.putErr = nil
	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))
}

func TestEvaluationServiceReportCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)
	seedSubmission(t, db, question.ID, student.ID, "print(3)")

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), redisClient, nil)
	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))

	first, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)

	// Mutate the stored rows; the cached response must be served unchanged.
	require.NoError(t, db.Model(&models.PlagiarismReport{}).Where("question_id = ?", question.ID).Update("bucket", "other-bucket").Error)

	second, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.Bucket, second.Bucket)

	// Once the cache entry expires the fresh rows are read.
	mini.FastForward(2 * time.Minute)

	third, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "other-bucket", third.Bucket)
}

func TestEvaluationServiceReportMissing(t *testing.T) {
	db := setupTestDB(t)
	_, _, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusClosed)

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), nil, nil)

	_, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.False(t, found)
}

// lateSubmitRunner files one extra final submission during the first grading
// call, mimicking a student who submits while earlier code is still running
// in the sandbox.
type lateSubmitRunner struct {
	inner fakeRunner
	db    *gorm.DB
	late  models.Submission
	filed bool
	runs  int
}

func (r *lateSubmitRunner) Run(ctx context.Context, language models.Language, source string, cases []models.TestCase) ([]models.TestCaseRun, error) {
	r.runs++
	if !r.filed {
		r.filed = true
		if err := r.db.Create(&r.late).Error; err != nil {
			return nil, err
		}
	}
	return r.inner.Run(ctx, language, source, cases)
}

func TestEvaluationServiceGradesLateSubmission(t *testing.T) {
	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	second := models.User{Name: "Pat Cole", Email: "pat@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: class.ID, StudentID: second.ID}).Error)

	seedSubmission(t, db, question.ID, student.ID, "a, b = input().split()\nprint(int(a) + int(b))\n# 3 15")

	runner := &lateSubmitRunner{
		db: db,
		late: models.Submission{
			QuestionID: question.ID,
			StudentID:  second.ID,
			Language:   models.LanguagePython,
			Filename:   "Main.py",
			Source:     "a, b = input().split()\nprint(int(a) + int(b))\n# 3 15 x",
			ObjectKey:  submissionKey(question.ID, second.ID, "Main.py"),
			Status:     models.SubmissionStatusPending,
		},
	}
	svc := newEvaluationService(t, db, runner, newFakeStore(), nil, nil)

	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))
	require.Equal(t, 2, runner.runs)

	// The final filed mid-run is graded and paired like any other.
	var graded []models.Submission
	require.NoError(t, db.Where("question_id = ?", question.ID).Find(&graded).Error)
	require.Len(t, graded, 2)
	for _, submission := range graded {
		require.Equal(t, models.SubmissionStatusGraded, submission.Status)
		require.NotNil(t, submission.Score)
	}

	report, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, report.Results, 1)
}

func TestEvaluationServiceReportFailureRollsBackClose(t *testing.T) {
	db := setupTestDB(t)
	instructor, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)
	seedSubmission(t, db, question.ID, student.ID, "print(3)")

	// A conflicting report row makes the insert inside the commit fail.
	require.NoError(t, db.Create(&models.PlagiarismReport{
		QuestionID: question.ID,
		Threshold:  models.DefaultSimilarityThreshold,
		Bucket:     "test-bucket",
	}).Error)

	svc := newEvaluationService(t, db, &fakeRunner{}, newFakeStore(), nil, nil)
	require.Error(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))

	// The close rolled back with the failed insert, so the question is still
	// open and the grades were not persisted.
	var unchanged models.Question
	require.NoError(t, db.First(&unchanged, question.ID).Error)
	require.Equal(t, models.QuestionStatusOpen, unchanged.Status)

	var submission models.Submission
	require.NoError(t, db.Where("question_id = ?", question.ID).First(&submission).Error)
	require.Equal(t, models.SubmissionStatusPending, submission.Status)
	require.Nil(t, submission.Score)

	// Clearing the conflict makes the same call succeed.
	require.NoError(t, db.Where("question_id = ?", question.ID).Delete(&models.PlagiarismReport{}).Error)
	require.NoError(t, svc.Evaluate(context.Background(), instructor.ID, question.ID))

	report, found, err := svc.Report(context.Background(), question.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, models.DefaultSimilarityThreshold, report.Threshold, 1e-9)
}

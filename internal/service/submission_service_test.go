package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/repository"
)

func sourceFileHeader(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["file"][0]
}

func TestSubmissionServiceTestRun(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	store := newFakeStore()
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, store, zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)\nprint(15)\n")
	response, err := svc.TestRun(context.Background(), student.ID, question.ID, file, "")
	require.NoError(t, err)
	require.Len(t, response.Results, 2)
	require.Equal(t, models.TestRunPassed, response.Results[0].Status)
	require.Equal(t, models.TestRunPassed, response.Results[1].Status)

	// A test run stores only a scratch artifact, never a submission row.
	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
	require.Contains(t, store.objects, scratchKey(question.ID, student.ID, "Main.py"))
}

func TestSubmissionServiceTestRunRetiresStaleScratch(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	store := newFakeStore()
	store.objects[scratchKey(question.ID, student.ID, "Main.java")] = "class Main {}"

	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, store, zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)")
	_, err := svc.TestRun(context.Background(), student.ID, question.ID, file, "Main.java")
	require.NoError(t, err)

	require.NotContains(t, store.objects, scratchKey(question.ID, student.ID, "Main.java"))
	require.Contains(t, store.objects, scratchKey(question.ID, student.ID, "Main.py"))
}

func TestSubmissionServiceSubmitExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	store := newFakeStore()
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, store, zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)\nprint(15)\n")
	require.NoError(t, svc.Submit(context.Background(), student.ID, question.ID, file, ""))

	var submission models.Submission
	require.NoError(t, db.Where("question_id = ? AND student_id = ?", question.ID, student.ID).First(&submission).Error)
	require.Equal(t, models.LanguagePython, submission.Language)
	require.Equal(t, models.SubmissionStatusPending, submission.Status)
	require.Contains(t, store.objects, submission.ObjectKey)

	// The second attempt is rejected regardless of content, and the stored
	// artifact still matches the winning row's source.
	again := sourceFileHeader(t, "Main.py", "print('different')")
	err := svc.Submit(context.Background(), student.ID, question.ID, again, "")
	require.ErrorIs(t, err, ErrAlreadySubmitted)
	require.Equal(t, submission.Source, store.objects[submission.ObjectKey])
}

func TestSubmissionServiceSubmitStorageFailure(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	store := newFakeStore()
	store.putErr = errors.New("object storage down")
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, store, zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)")
	err := svc.Submit(context.Background(), student.ID, question.ID, file, "")
	require.Error(t, err)

	// The row was rolled back with the failed upload, so the student can
	// retry once storage recovers.
	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Where("question_id = ?", question.ID).Count(&count).Error)
	require.Zero(t, count)

	store.putErr = nil
	retry := sourceFileHeader(t, "Main.py", "print(3)")
	require.NoError(t, svc.Submit(context.Background(), student.ID, question.ID, retry, ""))
}

func TestSubmissionServiceSubmitClosedQuestion(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusClosed)

	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, newFakeStore(), zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)")
	err := svc.Submit(context.Background(), student.ID, question.ID, file, "")
	require.ErrorIs(t, err, ErrQuestionClosed)

	_, err = svc.TestRun(context.Background(), student.ID, question.ID, file, "")
	require.ErrorIs(t, err, ErrQuestionClosed)
}

func TestSubmissionServiceGuards(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	outsider := models.User{Name: "Alex Wu", Email: "alex@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&outsider).Error)

	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, newFakeStore(), zerolog.Nop())

	file := sourceFileHeader(t, "Main.py", "print(3)")
	err := svc.Submit(context.Background(), outsider.ID, question.ID, file, "")
	require.ErrorIs(t, err, ErrNotEnrolled)

	unknown := sourceFileHeader(t, "solution.rb", "puts 3")
	err = svc.Submit(context.Background(), student.ID, question.ID, unknown, "")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSubmissionServiceQuestionDetailStates(t *testing.T) {
	db := setupTestDB(t)
	_, student, class := seedClass(t, db)
	question := seedQuestion(t, db, class.ID, models.QuestionStatusOpen)

	svc := NewSubmissionService(repository.NewSubmissionRepository(db), repository.NewQuestionRepository(db), repository.NewClassRepository(db), &fakeRunner{}, newFakeStore(), zerolog.Nop())

	detail, err := svc.QuestionDetail(context.Background(), student.ID, class.ID, question.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStateNotSubmitted), detail.State)
	require.Empty(t, detail.Message)

	file := sourceFileHeader(t, "Main.py", "print(3)\nprint(15)\n")
	require.NoError(t, svc.Submit(context.Background(), student.ID, question.ID, file, ""))

	detail, err = svc.QuestionDetail(context.Background(), student.ID, class.ID, question.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatePending), detail.State)
	require.Equal(t, "Already submitted. Please wait for results.", detail.Message)
	require.Nil(t, detail.Submission)

	// Grade the row and close the question.
	score := 100.0
	require.NoError(t, db.Model(&models.Submission{}).
		Where("question_id = ? AND student_id = ?", question.ID, student.ID).
		Updates(map[string]interface{}{"score": score, "feedback": "Passed 2 of 2 test cases.", "status": models.SubmissionStatusGraded}).Error)
	require.NoError(t, db.Model(&models.Question{}).Where("id = ?", question.ID).Update("status", models.QuestionStatusClosed).Error)

	detail, err = svc.QuestionDetail(context.Background(), student.ID, class.ID, question.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStateGraded), detail.State)
	require.Empty(t, detail.Message)
	require.NotNil(t, detail.Submission)
	require.InDelta(t, 100.0, *detail.Submission.Score, 1e-9)
}
